package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/model"
)

const PrincipalKey contextKey = "principal"

type principalClaims struct {
	Username string `json:"username"`
	Number   string `json:"number,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authentication resolves the acting principal from a bearer token and
// injects it into the request context. Requests without a token pass
// through unauthenticated; handlers that need a principal reject them.
// Requests with a malformed or forged token are rejected here.
func Authentication(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				rejectUnauthorized(w, log, r, "malformed Authorization header")
				return
			}

			claims := &principalClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				rejectUnauthorized(w, log, r, "invalid bearer token")
				return
			}

			principal := model.Principal{
				UserID:   claims.Subject,
				Username: claims.Username,
				Number:   claims.Number,
				Role:     claims.Role,
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom returns the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(model.Principal)
	return p, ok
}

func rejectUnauthorized(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	log.Warn("Rejected unauthenticated request",
		"request_id", RequestID(r.Context()),
		"path", r.URL.Path,
		"reason", reason,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Invalid or missing credentials"}`))
}
