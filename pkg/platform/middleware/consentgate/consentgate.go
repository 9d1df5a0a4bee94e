// Package consentgate integrates consent decisions into HTTP request
// handling: LoadConsent resolves the request subject and stashes their
// consent state in the context, RequirePurpose blocks routes whose purpose
// the subject has not granted.
package consentgate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"assent/pkg/consent"
	"assent/pkg/domain"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/httputil"
	"assent/pkg/platform/sentinel"
	"assent/pkg/requestcontext"
)

// Checker is the consent surface the middleware needs. *consent.Client
// satisfies it.
type Checker interface {
	ShowConsentBanner(ctx context.Context, subjectID string) (bool, error)
	GetConsent(ctx context.Context, subjectID string) (consent.Record, error)
}

// SubjectFunc resolves the consent subject for a request. Returning ""
// marks the request anonymous: no consent state is loaded and every
// non-essential purpose gate denies.
type SubjectFunc func(r *http.Request) string

// SubjectFromCookie resolves the subject from a cookie value.
func SubjectFromCookie(name string) SubjectFunc {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// SubjectFromHeader resolves the subject from a request header.
func SubjectFromHeader(name string) SubjectFunc {
	return func(r *http.Request) string {
		return r.Header.Get(name)
	}
}

type recordKey struct{}
type bannerKey struct{}

// WithRecord stores a loaded consent record in the context.
func WithRecord(ctx context.Context, rec consent.Record) context.Context {
	return context.WithValue(ctx, recordKey{}, rec)
}

// RecordFrom returns the consent record LoadConsent stored, if any.
func RecordFrom(ctx context.Context) (consent.Record, bool) {
	rec, ok := ctx.Value(recordKey{}).(consent.Record)
	return rec, ok
}

// WithBannerDecision stores the banner decision in the context.
func WithBannerDecision(ctx context.Context, show bool) context.Context {
	return context.WithValue(ctx, bannerKey{}, show)
}

// ShowBanner reports whether the request's subject must be shown the consent
// banner. Defaults to true when LoadConsent did not run or the request is
// anonymous; when in doubt, ask.
func ShowBanner(ctx context.Context) bool {
	show, ok := ctx.Value(bannerKey{}).(bool)
	if !ok {
		return true
	}
	return show
}

// LoadConsent resolves the request's subject, evaluates the banner decision,
// and loads the active consent record into the context for RequirePurpose
// and handlers. An unusable subject ID answers 400; consent state that
// cannot be read leaves the context without a record, which denies
// non-essential gates downstream.
func LoadConsent(checker Checker, subject SubjectFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID := subject(r)
			if subjectID == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestcontext.WithSubjectID(r.Context(), subjectID)

			show, err := checker.ShowConsentBanner(ctx, subjectID)
			if err != nil {
				logger.WarnContext(ctx, "banner evaluation rejected subject",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			ctx = WithBannerDecision(ctx, show)

			if !show {
				rec, err := checker.GetConsent(ctx, subjectID)
				switch {
				case err == nil:
					ctx = WithRecord(ctx, rec)
				case errors.Is(err, sentinel.ErrNotFound):
					// Revoked between the two reads; the gate treats the
					// subject as unconsented.
				default:
					logger.WarnContext(ctx, "consent record load failed",
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePurpose denies the request with a missing-consent envelope unless
// the loaded record actively grants the purpose. Essential purposes pass
// unconditionally; they are exempt from opt-in. Apply LoadConsent first.
func RequirePurpose(purpose domain.Purpose) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if purpose.IsEssential() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			rec, ok := RecordFrom(ctx)
			if !ok || !rec.Grants(purpose, requestcontext.Now(ctx)) {
				httputil.WriteError(w, dErrors.Newf(dErrors.CodeMissingConsent,
					"consent for %q not granted", purpose))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
