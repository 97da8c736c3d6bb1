package middleware

import (
	"fmt"
	"net/http"

	apperrors "github.com/3leaps/gridharvest/internal/errors"
)

// ErrorResponse is the JSON envelope written by the recovery middleware.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts handler panics into a 500 error envelope instead of
// tearing down the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeErrorResponse(w, apperrors.HTTPError{
					Code:      apperrors.CodeInternalError,
					Message:   fmt.Sprintf("panic: %v", rec),
					RequestID: GetRequestID(r.Context()),
				}, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery kept for route wiring clarity.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// writeErrorResponse writes the envelope with the given status code.
func writeErrorResponse(w http.ResponseWriter, httpErr apperrors.HTTPError, statusCode int) {
	apperrors.Write(w, statusCode, httpErr)
}
