package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Response struct {
	Message string `json:"message"`
}

// ErrorResponse is the wire shape of every failed request. Detail must not
// carry token values or internal identifiers.
type ErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

func OK(message string) Response {
	return Response{Message: message}
}

func BadRequest(detail string) ErrorResponse {
	return ErrorResponse{
		Title:  "Invalid request",
		Detail: detail,
		Status: http.StatusBadRequest,
	}
}

func Unauthorized(detail string) ErrorResponse {
	return ErrorResponse{
		Title:  "Unauthorized",
		Detail: detail,
		Status: http.StatusUnauthorized,
	}
}

func Conflict(detail string) ErrorResponse {
	return ErrorResponse{
		Title:  "Conflict",
		Detail: detail,
		Status: http.StatusConflict,
	}
}

func Internal() ErrorResponse {
	return ErrorResponse{
		Title:  "Internal Server Error",
		Detail: "internal server error",
		Status: http.StatusInternalServerError,
	}
}

func ServiceUnavailable() ErrorResponse {
	return ErrorResponse{
		Title:  "Service Unavailable",
		Detail: "service unavailable",
		Status: http.StatusServiceUnavailable,
	}
}

func ValidationError(errs validator.ValidationErrors) ErrorResponse {
	var msgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return BadRequest(strings.Join(msgs, ", "))
}

func RenderError(w http.ResponseWriter, r *http.Request, e ErrorResponse) {
	render.Status(r, e.Status)
	render.JSON(w, r, e)
}
