package consentgate

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"assent/pkg/consent"
	"assent/pkg/domain"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/middleware/consentgate/mocks"
	"assent/pkg/platform/sentinel"
)

//go:generate mockgen -source=consentgate.go -destination=mocks/consentgate-mocks.go -package=mocks Checker
const subjectHeader = "X-Subject-ID"

// newGate wires LoadConsent plus a state-echo route and two purpose-gated
// routes behind a mocked Checker.
func newGate(t *testing.T) (*mocks.MockChecker, http.Handler) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	checker := mocks.NewMockChecker(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(LoadConsent(checker, SubjectFromHeader(subjectHeader), logger))
	r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
		rec, ok := RecordFrom(req.Context())
		resp := map[string]any{
			"show_banner": ShowBanner(req.Context()),
			"has_record":  ok,
		}
		if ok {
			resp["granted"] = rec.GrantedPurposes()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	r.With(RequirePurpose(domain.PurposeAnalytics)).Get("/analytics", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.With(RequirePurpose(domain.PurposeNecessary)).Get("/core", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return checker, r
}

func get(t *testing.T, h http.Handler, path, subject string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if subject != "" {
		req.Header.Set(subjectHeader, subject)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func stateOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func grantedRecord(purposes ...domain.Purpose) consent.Record {
	prefs := make(map[domain.Purpose]bool, len(purposes))
	for _, p := range purposes {
		prefs[p] = true
	}
	return consent.Record{
		ID:          domain.NewRecordID(),
		SubjectID:   "visitor-1",
		Preferences: prefs,
		GivenAt:     time.Now().UTC().Add(-time.Hour),
	}
}

func TestLoadConsent_AnonymousPassesThrough(t *testing.T) {
	_, h := newGate(t)

	resp := stateOf(t, get(t, h, "/state", ""))
	assert.Equal(t, true, resp["show_banner"])
	assert.Equal(t, false, resp["has_record"])
}

func TestLoadConsent_NewSubjectSeesBanner(t *testing.T) {
	checker, h := newGate(t)
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "visitor-1").Return(true, nil)

	resp := stateOf(t, get(t, h, "/state", "visitor-1"))
	assert.Equal(t, true, resp["show_banner"])
	assert.Equal(t, false, resp["has_record"])
}

func TestLoadConsent_ConsentedSubjectGetsRecord(t *testing.T) {
	checker, h := newGate(t)
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "visitor-1").Return(false, nil)
	checker.EXPECT().GetConsent(gomock.Any(), "visitor-1").
		Return(grantedRecord(domain.PurposeAnalytics), nil)

	resp := stateOf(t, get(t, h, "/state", "visitor-1"))
	assert.Equal(t, false, resp["show_banner"])
	assert.Equal(t, true, resp["has_record"])
	assert.Contains(t, resp["granted"], "analytics")
}

func TestLoadConsent_RecordVanishesBetweenReads(t *testing.T) {
	checker, h := newGate(t)
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "visitor-1").Return(false, nil)
	checker.EXPECT().GetConsent(gomock.Any(), "visitor-1").
		Return(consent.Record{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "no consent recorded"))

	resp := stateOf(t, get(t, h, "/state", "visitor-1"))
	assert.Equal(t, false, resp["show_banner"])
	assert.Equal(t, false, resp["has_record"])
}

func TestLoadConsent_RejectsBadSubject(t *testing.T) {
	checker, h := newGate(t)
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "bad\x00subject").
		Return(false, dErrors.New(dErrors.CodeInvalidInput, "parse subject id"))

	w := get(t, h, "/state", "bad\x00subject")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_input", resp["error"])
}

func TestRequirePurpose_EssentialAlwaysPasses(t *testing.T) {
	_, h := newGate(t)

	w := get(t, h, "/core", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequirePurpose_GrantedPasses(t *testing.T) {
	checker, h := newGate(t)
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "visitor-1").Return(false, nil)
	checker.EXPECT().GetConsent(gomock.Any(), "visitor-1").
		Return(grantedRecord(domain.PurposeAnalytics, domain.PurposeNecessary), nil)

	w := get(t, h, "/analytics", "visitor-1")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequirePurpose_MissingConsentDenied(t *testing.T) {
	checker, h := newGate(t)
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "visitor-2").Return(true, nil)

	w := get(t, h, "/analytics", "visitor-2")
	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "missing_consent", resp["error"])
	assert.Contains(t, resp["error_description"], "analytics")
}

func TestRequirePurpose_UngrantedPurposeDenied(t *testing.T) {
	checker, h := newGate(t)
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "visitor-1").Return(false, nil)
	checker.EXPECT().GetConsent(gomock.Any(), "visitor-1").
		Return(grantedRecord(domain.PurposeFunctional), nil)

	w := get(t, h, "/analytics", "visitor-1")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePurpose_ExpiredRecordDenied(t *testing.T) {
	checker, h := newGate(t)
	rec := grantedRecord(domain.PurposeAnalytics)
	expired := time.Now().UTC().Add(-time.Minute)
	rec.ExpiresAt = &expired
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "visitor-1").Return(false, nil)
	checker.EXPECT().GetConsent(gomock.Any(), "visitor-1").Return(rec, nil)

	w := get(t, h, "/analytics", "visitor-1")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePurpose_UnreadableStorageDenies(t *testing.T) {
	checker, h := newGate(t)
	checker.EXPECT().ShowConsentBanner(gomock.Any(), "visitor-1").Return(false, nil)
	checker.EXPECT().GetConsent(gomock.Any(), "visitor-1").
		Return(consent.Record{}, dErrors.New(dErrors.CodeUnavailable, "read consent record"))

	w := get(t, h, "/analytics", "visitor-1")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubjectFromCookie(t *testing.T) {
	fn := SubjectFromCookie("assent_subject")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", fn(req))

	req.AddCookie(&http.Cookie{Name: "assent_subject", Value: "visitor-9"})
	assert.Equal(t, "visitor-9", fn(req))
}

func TestSubjectFromHeader(t *testing.T) {
	fn := SubjectFromHeader(subjectHeader)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", fn(req))

	req.Header.Set(subjectHeader, "visitor-9")
	assert.Equal(t, "visitor-9", fn(req))
}
