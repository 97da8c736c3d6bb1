// Package errors provides the JSON error envelope used by the HTTP surface.
//
// Every non-2xx response carries the same envelope shape so clients can
// handle failures uniformly:
//
//	{"error": {"code": "NOT_FOUND", "message": "...", "details": {...}}}
package errors

import (
	"encoding/json"
	"net/http"
)

// Standard error codes for the HTTP surface.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
)

// HTTPError is the error payload inside the envelope.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON envelope written for every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// Write writes the error envelope with the given status code.
func Write(w http.ResponseWriter, status int, httpErr HTTPError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: httpErr})
}

// RespondWithError writes a generic 500 envelope for an unclassified error.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "internal server error"
	if err != nil {
		msg = err.Error()
	}
	Write(w, http.StatusInternalServerError, HTTPError{
		Code:    CodeInternalError,
		Message: msg,
	})
}

// NotFoundHandler is the router's 404 handler.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusNotFound, HTTPError{
		Code:    CodeNotFound,
		Message: "resource not found: " + r.URL.Path,
	})
}

// MethodNotAllowedHandler is the router's 405 handler.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusMethodNotAllowed, HTTPError{
		Code:    CodeMethodNotAllowed,
		Message: "method " + r.Method + " not allowed for " + r.URL.Path,
	})
}
