package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/tokenfolio/portfolio-api/pkg/app/errors"
	apphttp "github.com/tokenfolio/portfolio-api/pkg/app/http"
)

// UserProvisioner persists the authenticated user on first sight.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, id, username string) error
}

// Middleware returns a chi-compatible middleware that validates the Bearer
// token against the JWKS, provisions the user row and stores the caller
// identity in the request context. Requests without a valid token get a 401.
func Middleware(validator *JWTValidator, users UserProvisioner, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing bearer token"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid token"))
				return
			}

			sub := claims.Subject
			if sub == "" {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "token has no subject"))
				return
			}

			username := claims.PreferredUsername
			if username == "" {
				username = sub
			}

			if err = users.EnsureUser(r.Context(), sub, username); err != nil {
				logger.Error("Failed to provision user", zap.String("user_id", sub), zap.Error(err))
				apphttp.DefaultErrorHandler(w, apperrors.GeneralError(err))
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{UserID: sub, Username: username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
