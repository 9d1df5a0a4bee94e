// Package requestmeta captures request-scoped metadata early in the HTTP
// chain: a request ID, the request time, and client details parsed from the
// User-Agent header. Downstream code reads everything through
// pkg/requestcontext, so handlers and the consent client never touch
// *http.Request themselves.
package requestmeta

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"assent/pkg/requestcontext"
)

// RequestIDHeader is read from the request when a proxy already assigned an
// ID, and always written to the response.
const RequestIDHeader = "X-Request-ID"

// Collect is the metadata middleware. Apply it before anything that logs,
// audits, or evaluates consent.
func Collect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := r.Context()
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		ctx = requestcontext.WithClientInfo(ctx, clientInfoFromRequest(r))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientInfoFromRequest(r *http.Request) requestcontext.ClientInfo {
	rawUA := r.Header.Get("User-Agent")
	info := requestcontext.ClientInfo{
		IP:        ClientIPFromRequest(r),
		UserAgent: rawUA,
	}
	if rawUA == "" {
		return info
	}

	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	info.Browser = name
	info.BrowserVersion = version
	info.OS = ua.OS()
	info.Mobile = ua.Mobile()
	info.Bot = ua.Bot()
	return info
}

// ClientIPFromRequest extracts the real client IP from the request, handling
// proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...);
	// the first one is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" for IPv4 and "[::1]:port" for IPv6.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
