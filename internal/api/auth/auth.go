// Package auth verifies the Supabase access tokens the coach dashboard sends
// and scopes coach routes to the authenticated coach.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/mycarecoach/coachos/internal/api/respond"
)

// Claims is the part of a Supabase access token the API reads. The subject
// is the auth user id, which is also the coachs.id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// Middleware requires a valid HS256 Bearer token signed with secret and
// stores its coach id in the request context. Without a secret, requests
// pass unauthenticated outside production and are refused in production.
func Middleware(secret string, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				if production {
					respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication is not configured")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header must be Bearer {token}")
				return
			}

			coachID, err := Verify(raw, secret)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "Token has expired"
				}
				respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCoach(r.Context(), coachID)))
		})
	}
}

// Verify parses a token and returns the coach id in its subject.
func Verify(raw, secret string) (uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid || claims.ExpiresAt == nil {
		return uuid.Nil, errors.New("token has no expiry")
	}
	coachID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject: %w", err)
	}
	return coachID, nil
}

// NewToken signs a token for coachID, valid for ttl.
func NewToken(secret string, coachID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   coachID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// WithCoach returns ctx carrying the authenticated coach id.
func WithCoach(ctx context.Context, coachID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, coachID)
}

// CoachID returns the authenticated coach, if the request carried a token.
func CoachID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	return id, ok
}

// RequireCoach rejects requests whose {param} path value is not the
// authenticated coach. Unauthenticated requests that Middleware let through
// are not checked.
func RequireCoach(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			coachID, ok := CoachID(r.Context())
			if ok && !strings.EqualFold(chi.URLParam(r, param), coachID.String()) {
				respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "Token does not grant access to this coach")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
