package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	resp "signin_service/internal/lib/api/response"
	"signin_service/internal/lib/jwt"
	sl "signin_service/internal/lib/logger"
	"signin_service/internal/metrics"
	"signin_service/internal/models"
	"signin_service/internal/storage"

	"github.com/go-chi/chi/middleware"
)

type ctxKey struct{}

const bearerPrefix = "Bearer "

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
}

// New gates every protected request: one signature check, one point lookup,
// no caching of the decoded identity between requests.
func New(log *slog.Logger, jwtSecret string, users UserProvider, mtr *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.auth.New"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				mtr.AuthChecks.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
				resp.RenderError(w, r, resp.Unauthorized("missing or invalid authentication"))

				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))

			claims, err := jwt.ParseAccessToken(jwtSecret, token)
			if err != nil {
				log.Warn("token verification failed", sl.Err(err))

				mtr.AuthChecks.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
				resp.RenderError(w, r, resp.Unauthorized("invalid token"))

				return
			}

			userID, err := claims.UserID()
			if err != nil {
				log.Warn("token carries malformed subject", sl.Err(err))

				mtr.AuthChecks.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
				resp.RenderError(w, r, resp.Unauthorized("invalid token"))

				return
			}

			user, err := users.UserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, storage.ErrUserNotFound) {
					// A still-valid token pointing at a vanished user is a
					// data-consistency problem, not a client error.
					log.Error("user from valid token not found", slog.Int64("uid", userID))

					mtr.AuthChecks.WithLabelValues(metrics.OutcomeError).Inc()
					resp.RenderError(w, r, resp.Internal())

					return
				}

				if errors.Is(err, storage.ErrUnavailable) {
					log.Error("storage unavailable", sl.Err(err))

					mtr.AuthChecks.WithLabelValues(metrics.OutcomeError).Inc()
					resp.RenderError(w, r, resp.ServiceUnavailable())

					return
				}

				log.Error("failed to load user", sl.Err(err))

				mtr.AuthChecks.WithLabelValues(metrics.OutcomeError).Inc()
				resp.RenderError(w, r, resp.Internal())

				return
			}

			mtr.AuthChecks.WithLabelValues(metrics.OutcomeOK).Inc()

			ctx := context.WithValue(r.Context(), ctxKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		}

		return http.HandlerFunc(fn)
	}
}

// UserFromContext returns the user attached by the gate.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}
