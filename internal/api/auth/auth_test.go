package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters"

func TestVerifyRoundTrip(t *testing.T) {
	coach := uuid.New()
	token, err := NewToken(secret, coach, time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	got, err := Verify(token, secret)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != coach {
		t.Fatalf("subject = %s, want %s", got, coach)
	}
}

func TestVerifyRejects(t *testing.T) {
	coach := uuid.New()
	expired, _ := NewToken(secret, coach, -time.Minute)
	if _, err := Verify(expired, secret); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expired token: got %v", err)
	}

	other, _ := NewToken("another-secret", coach, time.Hour)
	if _, err := Verify(other, secret); err == nil {
		t.Error("token signed with another secret accepted")
	}

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	if _, err := Verify(noSubject, secret); err == nil {
		t.Error("token without a coach subject accepted")
	}

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: coach.String()},
	}).SignedString([]byte(secret))
	if _, err := Verify(noExpiry, secret); err == nil {
		t.Error("token without expiry accepted")
	}

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: coach.String(), ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := Verify(unsigned, secret); err == nil {
		t.Error("alg=none token accepted")
	}
}

func TestMiddlewareWithoutSecret(t *testing.T) {
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, reached = CoachID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	Middleware("", false)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent || reached {
		t.Fatalf("development: got %d, identity set %v", rec.Code, reached)
	}

	rec = httptest.NewRecorder()
	Middleware("", true)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("production: got %d", rec.Code)
	}
}

func TestMiddlewareStoresCoach(t *testing.T) {
	coach := uuid.New()
	token, _ := NewToken(secret, coach, time.Hour)

	var got uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = CoachID(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	Middleware(secret, true)(next).ServeHTTP(httptest.NewRecorder(), req)

	if got != coach {
		t.Fatalf("coach in context = %s, want %s", got, coach)
	}
}
