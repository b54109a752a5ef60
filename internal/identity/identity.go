// Package identity resolves the self-declared display name that
// partitions all persisted state. It is a namespace key, not a
// security principal: no credentials, no uniqueness guarantees.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	CookieName   = "ia_identity"
	HeaderName   = "X-IA-Identity"
	cookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const identityKey contextKey = iota

// identityPattern bounds what we accept as a display name. Rejected
// values fall through to the unauthenticated path.
var identityPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]{0,63}$`)

// FromContext extracts the identity from the request context, empty
// when the request carried none.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(identityKey).(string); ok {
		return v
	}
	return ""
}

// WithIdentity returns a context carrying identity. Exposed for
// handler tests.
func WithIdentity(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Sanitize validates a candidate display name, returning the trimmed
// value or empty when it is unusable.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if !identityPattern.MatchString(id) {
		return ""
	}
	return id
}

func fromRequest(r *http.Request) string {
	if v := Sanitize(r.Header.Get(HeaderName)); v != "" {
		return v
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return Sanitize(c.Value)
	}
	return ""
}

// SetCookie binds identity to the client for subsequent requests.
func SetCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Expires:  time.Now().Add(cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// ClearCookie detaches the client from its identity. Persisted agents
// and transcripts stay in the store for the next sign-in.
func ClearCookie(w http.ResponseWriter, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// Middleware injects the request's identity into the context. Requests
// without a usable identity pass through with an empty value; handlers
// that need one reject those themselves.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := fromRequest(r); id != "" {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
