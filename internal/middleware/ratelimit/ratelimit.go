package rateLimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

func SignIn() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func Continue() func(http.Handler) http.Handler {
	return limitByIP(20, 10*time.Minute)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window)
}
