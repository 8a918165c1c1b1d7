package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// errorResponse is the wire format for every error this server returns,
// from middleware and from the handlers package alike: {error_code,
// message, details?}.
type errorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// errorCodeForStatus maps an HTTP status back to a stable machine-readable
// code for responses originated by middleware (the handlers package maps
// its own typed errors directly instead of going through an HTTP status).
func errorCodeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}

// writeErrorResponse writes a consistent error response.
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := errorResponse{
		ErrorCode: errorCodeForStatus(statusCode),
		Message:   message,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Str("message", message).Msg("Failed to encode middleware error response")
	}
}
