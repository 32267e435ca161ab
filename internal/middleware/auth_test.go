package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func authProtected(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := r.Context().Value(UserContextKey).(string); ok {
			gotUser = u
		}
		w.WriteHeader(http.StatusOK)
	})
	return AuthMiddleware(testSecret, zerolog.Nop())(next), &gotUser
}

func TestAuthMiddlewareInjectsSubject(t *testing.T) {
	handler, gotUser := authProtected(t)
	token := mintToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "user-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if *gotUser != "user-a" {
		t.Fatalf("context user = %q, want user-a", *gotUser)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	handler, gotUser := authProtected(t)

	expired := mintToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "user-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongSecret := mintToken(t, "other-secret", jwt.RegisteredClaims{
		Subject:   "user-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noSubject := mintToken(t, testSecret, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expired},
		{"wrong secret", "Bearer " + wrongSecret},
		{"missing subject", "Bearer " + noSubject},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			*gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if *gotUser != "" {
				t.Fatal("rejected request must not reach the handler")
			}
		})
	}
}
