package redeem

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"signin_service/internal/auth"
	resp "signin_service/internal/lib/api/response"
	sl "signin_service/internal/lib/logger"
	"signin_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type SignInRedeemer interface {
	RedeemSignIn(ctx context.Context, token string) (accessToken, refreshToken string, err error)
}

// New handles GET /auth/continue/{token}.
func New(log *slog.Logger, flow SignInRedeemer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.redeem.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := chi.URLParam(r, "token")
		if token == "" {
			resp.RenderError(w, r, resp.Unauthorized("invalid verification token"))

			return
		}

		accessToken, refreshToken, err := flow.RedeemSignIn(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidVerificationToken):
				resp.RenderError(w, r, resp.Unauthorized("invalid verification token"))
			case errors.Is(err, auth.ErrVerificationTokenExpired):
				resp.RenderError(w, r, resp.Unauthorized("verification token expired"))
			case errors.Is(err, storage.ErrUnavailable):
				resp.RenderError(w, r, resp.ServiceUnavailable())
			default:
				log.Error("failed to redeem sign-in", sl.Err(err))

				resp.RenderError(w, r, resp.Internal())
			}

			return
		}

		log.Info("Sign-in redeemed")

		render.JSON(w, r, Response{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		})
	}
}
