// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"hublink/pkg/config"
)

type ctxUserKey struct{}
type ctxScopesKey struct{}

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

// WithUser resolves the caller identity for every request under /v1.
//
// When OIDC is configured the bearer token is validated against the issuer's
// JWKS and the subject claim becomes the user id. Without OIDC (dev bring-up)
// the X-User-ID header is trusted as-is; the full session system lives
// outside this service.
func WithUser(cfg config.Config) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			if strings.HasPrefix(r.URL.Path, "/.well-known/") {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.Issuer == "" || cfg.JWKSURL == "" {
				uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
				if uid == "" {
					http.Error(w, "missing identity", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, uid)))
				return
			}

			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			set, err := cache.get(r.Context(), cfg.JWKSURL, jwksTTL)
			if err != nil {
				http.Error(w, "jwks unavailable", http.StatusInternalServerError)
				return
			}
			tok, err := jwt.Parse([]byte(raw),
				jwt.WithKeySet(set),
				jwt.WithIssuer(strings.TrimRight(cfg.Issuer, "/")),
				jwt.WithAudience(cfg.Audience),
				jwt.WithValidate(true),
			)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserKey{}, tok.Subject())
			if v, ok := tok.Get("scope"); ok {
				if s, ok := v.(string); ok && s != "" {
					ctx = context.WithValue(ctx, ctxScopesKey{}, strings.Fields(s))
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the authenticated user id, or "".
func UserFrom(ctx context.Context) string {
	if v := ctx.Value(ctxUserKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ScopesFrom returns the token scopes, nil when none were granted.
func ScopesFrom(ctx context.Context) []string {
	if v := ctx.Value(ctxScopesKey{}); v != nil {
		if s, ok := v.([]string); ok {
			return s
		}
	}
	return nil
}

// HasAnyScope reports whether the caller holds at least one of the required
// scopes. An empty requirement always passes, as does a caller with no scope
// claim at all (dev identities carry none).
func HasAnyScope(ctx context.Context, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := ScopesFrom(ctx)
	if have == nil {
		return true
	}
	for _, r := range required {
		for _, h := range have {
			if h == r {
				return true
			}
		}
	}
	return false
}
