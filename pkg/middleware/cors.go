package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// RequestIDHeader carries the request ID back to the client
const RequestIDHeader = "X-Request-Id"

// CORS allows the dashboard origins to call the API with credentials
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
