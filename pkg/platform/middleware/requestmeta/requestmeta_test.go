package requestmeta

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assent/pkg/requestcontext"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func collect(t *testing.T, mutate func(*http.Request)) (requestcontext.ClientInfo, string, time.Time, *httptest.ResponseRecorder) {
	t.Helper()

	var (
		info      requestcontext.ClientInfo
		requestID string
		now       time.Time
	)
	handler := Collect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info = requestcontext.Info(ctx)
		requestID = requestcontext.RequestID(ctx)
		now = requestcontext.Now(ctx)
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return info, requestID, now, w
}

func TestCollect_MintsRequestID(t *testing.T) {
	_, requestID, now, w := collect(t, nil)

	require.NotEmpty(t, requestID)
	assert.Equal(t, requestID, w.Header().Get(RequestIDHeader), "response carries the ID")
	assert.WithinDuration(t, time.Now(), now, 5*time.Second)
}

func TestCollect_KeepsUpstreamRequestID(t *testing.T) {
	_, requestID, _, w := collect(t, func(r *http.Request) {
		r.Header.Set(RequestIDHeader, "upstream-42")
	})

	assert.Equal(t, "upstream-42", requestID)
	assert.Equal(t, "upstream-42", w.Header().Get(RequestIDHeader))
}

func TestCollect_ParsesUserAgent(t *testing.T) {
	info, _, _, _ := collect(t, func(r *http.Request) {
		r.Header.Set("User-Agent", chromeUA)
	})

	assert.Equal(t, chromeUA, info.UserAgent)
	assert.Equal(t, "Chrome", info.Browser)
	assert.NotEmpty(t, info.BrowserVersion)
	assert.False(t, info.Mobile)
	assert.False(t, info.Bot)
}

func TestCollect_EmptyUserAgent(t *testing.T) {
	info, _, _, _ := collect(t, func(r *http.Request) {
		r.Header.Del("User-Agent")
	})

	assert.Empty(t, info.UserAgent)
	assert.Empty(t, info.Browser)
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   string
	}{
		{
			"x-forwarded-for single",
			func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7") },
			"203.0.113.7",
		},
		{
			"x-forwarded-for chain keeps first",
			func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1, 10.0.0.2") },
			"203.0.113.7",
		},
		{
			"x-real-ip",
			func(r *http.Request) { r.Header.Set("X-Real-IP", "198.51.100.4") },
			"198.51.100.4",
		},
		{
			"remote addr strips port",
			func(r *http.Request) { r.RemoteAddr = "192.0.2.9:54321" },
			"192.0.2.9",
		},
		{
			"ipv6 remote addr strips brackets",
			func(r *http.Request) { r.RemoteAddr = "[::1]:54321" },
			"::1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = ""
			tt.mutate(r)
			assert.Equal(t, tt.want, ClientIPFromRequest(r))
		})
	}
}
