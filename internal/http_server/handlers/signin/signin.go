package signin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "signin_service/internal/lib/api/response"
	sl "signin_service/internal/lib/logger"
	"signin_service/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required,email"`
}

type SignInRequester interface {
	RequestSignIn(ctx context.Context, email string) error
}

// New handles POST /auth/signin. The response is the same whether or not an
// account exists for the email.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	flow SignInRequester,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.signin.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			resp.RenderError(w, r, resp.BadRequest("failed to decode request"))

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if !errors.As(err, &validateErr) {
				log.Error("failed to validate request", sl.Err(err))

				resp.RenderError(w, r, resp.Internal())

				return
			}

			log.Warn("Invalid request", sl.Err(err))

			resp.RenderError(w, r, resp.ValidationError(validateErr))

			return
		}

		if err := flow.RequestSignIn(r.Context(), req.Email); err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				resp.RenderError(w, r, resp.ServiceUnavailable())

				return
			}

			log.Error("failed to request sign-in", sl.Err(err))

			resp.RenderError(w, r, resp.Internal())

			return
		}

		render.JSON(w, r, resp.OK("We've sent you an email"))
	}
}
