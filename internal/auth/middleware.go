package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sha1n/mcp-lumen-server/internal/config"
)

// DefaultExcludedPaths bypass authentication when NewMiddleware is given no explicit list.
var DefaultExcludedPaths = []string{"/health"}

var rejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lumen_auth_rejected_requests_total",
	Help: "Requests rejected by the authentication middleware.",
}, []string{"type"})

// Middleware wraps a handler with authentication.
type Middleware func(http.Handler) http.Handler

// NewMiddleware creates a new authentication middleware based on settings. Requests to
// one of the excluded paths are passed through without credentials.
func NewMiddleware(settings config.AuthSettings, excludedPaths ...string) (Middleware, error) {
	if len(excludedPaths) == 0 {
		excludedPaths = DefaultExcludedPaths
	}
	excluded := make(map[string]bool, len(excludedPaths))
	for _, p := range excludedPaths {
		excluded[p] = true
	}

	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		return withExclusions(excluded, basicAuth(settings.Basic)), nil
	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		return withExclusions(excluded, apiKeyAuth(settings.APIKeys)), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}
}

// authorizer reports whether a request carries valid credentials. On rejection it may set
// response headers before the 401 is written.
type authorizer struct {
	kind  string
	allow func(w http.ResponseWriter, r *http.Request) bool
}

// withExclusions builds the middleware and skips auth for excluded paths
func withExclusions(excluded map[string]bool, a authorizer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excluded[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if !a.allow(w, r) {
				rejectedRequests.WithLabelValues(a.kind).Inc()
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func basicAuth(settings config.BasicAuthSettings) authorizer {
	return authorizer{
		kind: config.AuthTypeBasic,
		allow: func(w http.ResponseWriter, r *http.Request) bool {
			user, pass, ok := r.BasicAuth()
			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(settings.Username)) == 1
			passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(settings.Password)) == 1
			if !ok || !userMatch || !passMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
				return false
			}
			return true
		},
	}
}

func apiKeyAuth(apiKeys []string) authorizer {
	return authorizer{
		kind: config.AuthTypeAPIKey,
		allow: func(_ http.ResponseWriter, r *http.Request) bool {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				return false
			}
			// no early exit on match
			valid := false
			for _, validKey := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
					valid = true
				}
			}
			return valid
		},
	}
}
