package me

import (
	"log/slog"
	"net/http"
	"time"

	resp "signin_service/internal/lib/api/response"
	authMiddleware "signin_service/internal/middleware/auth"
	"signin_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	ID              int64       `json:"id"`
	Email           string      `json:"email"`
	EmailVerifiedAt *time.Time  `json:"email_verified_at,omitempty"`
	Image           *string     `json:"image,omitempty"`
	Role            models.Role `json:"role"`
	CreatedAt       time.Time   `json:"created_at"`
}

// New handles GET /users/me. The auth gate must run before this handler.
func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, ok := authMiddleware.UserFromContext(r.Context())
		if !ok {
			log.Error("no authenticated user in context")

			resp.RenderError(w, r, resp.Internal())

			return
		}

		render.JSON(w, r, Response{
			ID:              user.ID,
			Email:           user.Email,
			EmailVerifiedAt: user.EmailVerifiedAt,
			Image:           user.Image,
			Role:            user.Role,
			CreatedAt:       user.CreatedAt,
		})
	}
}
