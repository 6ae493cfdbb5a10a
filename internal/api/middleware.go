package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/auth"
	"github.com/mayank-dotcom/botsystem/internal/core"
)

type contextKey string

const organizationKey contextKey = "organizationID"

// OrganizationFromContext returns the organization an admin token was issued for.
func OrganizationFromContext(ctx context.Context) (string, bool) {
	org, ok := ctx.Value(organizationKey).(string)
	return org, ok && org != ""
}

// RequestLogger logs every request once it completes.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("HTTP request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// AdminAuth requires a bearer token, scopes the request to its organization
// and records its subject as the actor for activity logging.
func (h *APIHandler) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authorization header is required")
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		identity, err := auth.ValidateJWT(h.jwtSecret, tokenString)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				h.logger.Warn("Token validation failed", zap.Error(err))
			}
			_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), organizationKey, identity.OrganizationID)
		ctx = core.WithActor(ctx, identity.AdminID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
