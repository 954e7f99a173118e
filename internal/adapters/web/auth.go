package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type webIdentityKey struct{}

// webIdentity is the caller of the web chat channel.
type webIdentity struct {
	Handle string
	Name   string
}

func identityFromContext(ctx context.Context) *webIdentity {
	v, _ := ctx.Value(webIdentityKey{}).(*webIdentity)
	return v
}

// jwtClaims is the token payload: sub is the web handle, name is optional.
type jwtClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// RequireBearer validates the Authorization bearer token and stores the caller's
// identity in the request context. Returns 401 if the token is absent or invalid.
func (h *Handler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || raw == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		claims := &jwtClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(h.opts.JWTSecret), nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			writeError(w, r, "invalid or expired token", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), webIdentityKey{}, &webIdentity{Handle: claims.Subject, Name: claims.Name})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
