package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/student-plans/internal/config"
	"github.com/Dan9191/student-plans/internal/integrations/backend"
	"github.com/Dan9191/student-plans/internal/utils"
)

// TokenCookie is the session cookie set by the admin login
const TokenCookie = "token"

var (
	errTokenMissing = errors.New("Authorization token not provided")
	errHeaderFormat = errors.New("Invalid Authorization header format")
)

type subjectKey struct{}

// Subject returns the authenticated admin id placed in the context by AuthMiddleware
func Subject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}

// AuthMiddleware rejects requests without a valid admin session token.
// The request cookies travel on in the context so backend calls carry the same session.
func AuthMiddleware(cfg *config.Config, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := tokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil || !token.Valid {
				log.Debugf("Rejected token for %s %s: %v", r.Method, r.URL.Path, err)
				utils.WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			ctx = backend.WithCredentials(ctx, r.Cookies())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errTokenMissing
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errHeaderFormat
	}
	return parts[1], nil
}
