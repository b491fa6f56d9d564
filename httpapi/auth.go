package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/syssam/fabrica"
)

// JWTConfig accepts bearer tokens from a set of issuers sharing an
// audience. Secrets are the resolved HMAC keys, never env sentinels.
type JWTConfig struct {
	Audience string
	Services []JWTService
}

// JWTService is one accepted issuer.
type JWTService struct {
	Issuer string
	Secret string

	// RolesClaim names the claim carrying the caller's roles.
	// Defaults to "roles".
	RolesClaim string
}

// authMiddleware guards /v1: a matching API key or a valid JWT
// passes. JWT callers get a Viewer attached to the context.
func (rt *Runtime) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(rt.apiKeys) > 0 {
			if key := r.Header.Get(rt.apiKeyHeader); key != "" && rt.validAPIKey(key) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if rt.jwt != nil {
			if viewer, err := rt.jwt.verify(bearerToken(r)); err == nil {
				next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
				return
			}
		}
		rt.renderError(w, r, fabrica.NewAuthError("missing or invalid credentials"))
	})
}

func (rt *Runtime) validAPIKey(key string) bool {
	for _, k := range rt.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

// pullTokenMiddleware guards /_psdk with the configured bearer token.
// Without a configured token the endpoints are open.
func (rt *Runtime) pullTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.pullToken != "" {
			got := bearerToken(r)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(rt.pullToken)) != 1 {
				rt.renderError(w, r, fabrica.NewAuthError("invalid pull token"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

// verify parses and validates the token against every configured
// issuer, returning the viewer from the first match.
func (c *JWTConfig) verify(raw string) (*Viewer, error) {
	if raw == "" {
		return nil, fabrica.NewAuthError("missing bearer token")
	}
	var lastErr error
	for _, svc := range c.Services {
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithIssuer(svc.Issuer),
			jwt.WithExpirationRequired(),
		}
		if c.Audience != "" {
			opts = append(opts, jwt.WithAudience(c.Audience))
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return []byte(svc.Secret), nil
		}, opts...)
		if err != nil {
			lastErr = err
			continue
		}
		return viewerFromClaims(claims, svc), nil
	}
	if lastErr == nil {
		lastErr = fabrica.NewAuthError("no token issuers configured")
	}
	return nil, fabrica.NewAuthError(lastErr.Error())
}

func viewerFromClaims(claims jwt.MapClaims, svc JWTService) *Viewer {
	v := &Viewer{Issuer: svc.Issuer}
	if sub, err := claims.GetSubject(); err == nil {
		v.ID = sub
	}
	rolesClaim := svc.RolesClaim
	if rolesClaim == "" {
		rolesClaim = "roles"
	}
	if raw, ok := claims[rolesClaim].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				v.Roles = append(v.Roles, s)
			}
		}
	}
	return v
}
