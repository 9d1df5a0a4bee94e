// Package bannerdemo is a small server-rendered web app that consumes the
// consent SDK the way a host application would: cookie-scoped subjects, a
// consent banner, purpose-gated routes, and an operator view over the audit
// trail.
package bannerdemo

import (
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assent/pkg/consent"
	"assent/pkg/domain"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/audit/publisher"
	"assent/pkg/platform/httputil"
	"assent/pkg/platform/middleware/admin"
	"assent/pkg/platform/middleware/consentgate"
	"assent/pkg/platform/middleware/requestmeta"
	"assent/pkg/requestcontext"
)

// SubjectCookie carries the visitor's pseudonymous subject ID.
const SubjectCookie = "assent_subject"

const subjectCookieMaxAge = 365 * 24 * time.Hour

// Handler serves the demo pages and wires the consent middleware chain.
type Handler struct {
	client     *consent.Client
	audit      *publisher.Publisher
	logger     *slog.Logger
	adminToken string
	home       *template.Template
}

// New creates the demo handler. audit may be nil; the admin route then
// answers unavailable.
func New(client *consent.Client, audit *publisher.Publisher, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{
		client:     client,
		audit:      audit,
		logger:     logger,
		adminToken: adminToken,
		home:       template.Must(template.New("home").Parse(homePage)),
	}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Use(requestmeta.Collect)
	r.Use(h.ensureSubject)
	r.Use(consentgate.LoadConsent(h.client, consentgate.SubjectFromCookie(SubjectCookie), h.logger))

	r.Get("/", h.handleHome)
	r.Post("/consent", h.handleSetConsent)
	r.Post("/consent/revoke", h.handleRevokeConsent)
	r.With(consentgate.RequirePurpose(domain.PurposeAnalytics)).Get("/analytics/beacon", h.handleBeacon)
	r.Get("/healthz", h.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	if h.adminToken != "" {
		r.With(admin.RequireAdminToken(h.adminToken, h.logger)).Get("/admin/audit", h.handleAudit)
	}
}

// ensureSubject gives every visitor a stable subject cookie before the
// consent middleware resolves it.
func (h *Handler) ensureSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(SubjectCookie); err != nil {
			c := &http.Cookie{
				Name:     SubjectCookie,
				Value:    uuid.NewString(),
				Path:     "/",
				MaxAge:   int(subjectCookieMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			}
			http.SetCookie(w, c)
			r.AddCookie(c)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) subject(r *http.Request) string {
	c, err := r.Cookie(SubjectCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

type purposeView struct {
	Name      string
	Essential bool
	Granted   bool
}

type homeData struct {
	Subject    string
	ShowBanner bool
	Purposes   []purposeView
	RecordID   string
	GivenAt    string
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := homeData{
		Subject:    h.subject(r),
		ShowBanner: consentgate.ShowBanner(ctx),
	}

	rec, ok := consentgate.RecordFrom(ctx)
	now := requestcontext.Now(ctx)
	for _, p := range domain.AllPurposes() {
		data.Purposes = append(data.Purposes, purposeView{
			Name:      p.String(),
			Essential: p.IsEssential(),
			Granted:   ok && rec.Grants(p, now),
		})
	}
	if ok {
		data.RecordID = rec.ID.String()
		data.GivenAt = rec.GivenAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.home.Execute(w, data); err != nil {
		h.logger.ErrorContext(ctx, "render home page",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (h *Handler) handleSetConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}

	// Checkboxes submit only when ticked; essential purposes are always on.
	prefs := make(map[domain.Purpose]bool, len(domain.AllPurposes()))
	for _, p := range domain.AllPurposes() {
		prefs[p] = p.IsEssential() || r.Form.Has(p.String())
	}

	_, err := h.client.SetConsent(ctx, h.subject(r), prefs, consent.WithMetadata(map[string]string{
		"source": "banner",
		"ip":     requestmeta.ClientIPFromRequest(r),
	}))
	if err != nil {
		h.logger.WarnContext(ctx, "set consent failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.client.RevokeConsent(ctx, h.subject(r)); err != nil {
		h.logger.WarnContext(ctx, "revoke consent failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleBeacon stands in for an analytics collector. RequirePurpose keeps
// unconsented subjects out.
func (h *Handler) handleBeacon(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if h.client.Degraded() {
		status = "degraded"
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "audit trail not configured"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	events, err := h.audit.Recent(ctx, limit)
	if err != nil {
		// Write-only sinks (kafka) report unsupported; surface that as-is.
		if dErrors.HasCode(err, dErrors.CodeUnsupported) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "audit query failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "audit trail unavailable"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, events)
}
