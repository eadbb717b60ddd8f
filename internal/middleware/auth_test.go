package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/student-plans/internal/config"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin-1",
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newProtected(t *testing.T) http.Handler {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, ok := Subject(r.Context())
		assert.True(t, ok)
		_, _ = io.WriteString(w, sub)
	})
	return AuthMiddleware(&config.Config{JWTSecret: testSecret}, log)(next)
}

func TestAuthMiddleware(t *testing.T) {
	valid := signToken(t, testSecret, time.Now().Add(time.Hour))

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantError  string
	}{
		{
			name:       "cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: valid}) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "bearer header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Authorization token not provided",
		},
		{
			name:       "malformed header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Token "+valid) },
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid Authorization header format",
		},
		{
			name: "expired",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: TokenCookie, Value: signToken(t, testSecret, time.Now().Add(-time.Hour))})
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid or expired token",
		},
		{
			name: "wrong secret",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, "other", time.Now().Add(time.Hour)))
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid or expired token",
		},
	}

	h := newProtected(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/plans", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "admin-1", rec.Body.String())
				return
			}
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}
