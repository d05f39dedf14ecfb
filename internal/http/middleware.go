package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fjod/farmstand/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	headerSessionID = "X-Session-ID"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
)

// Claims are the token claims the storefront consumes. Tokens are issued elsewhere.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(headerRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the caller. A request without a bearer token is
// served as a guest; a token that fails validation is rejected.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := service.Actor{SessionID: strings.TrimSpace(r.Header.Get(headerSessionID))}

			if header := r.Header.Get("Authorization"); header != "" {
				claims, err := parseToken(header, secret)
				if err != nil {
					slog.InfoContext(r.Context(), "rejected bearer token", "request_id", getRequestID(r.Context()), "error", err)
					respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
					return
				}
				actor.UserID = claims.Subject
				actor.Role = claims.Role
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseToken(header string, secret []byte) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, errors.New("authorization header is not a bearer token")
	}
	if len(secret) == 0 {
		return nil, errors.New("token validation is not configured")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !getActor(r.Context()).Authenticated() {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := getActor(r.Context())
		if !actor.Authenticated() {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		if !actor.IsAdmin() {
			respondError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getActor(ctx context.Context) service.Actor {
	if actor, ok := ctx.Value(actorKey).(service.Actor); ok {
		return actor
	}
	return service.Actor{}
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
