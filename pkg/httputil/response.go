// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
)

// Envelope is the standard response shape for every endpoint:
// {"success": true, "data": ...} or {"success": false, "error": "...", "message": "..."}
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes a raw JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 OK envelope with data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteCreated writes a 201 Created envelope with data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// WriteSuccessMessage writes a 200 OK envelope with a human-readable message
func WriteSuccessMessage(w http.ResponseWriter, message string, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage writes an error envelope with an explicit status,
// machine-readable code, and message
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Envelope{Success: false, Error: code, Message: message})
}

// WriteError maps an application error to its status code and envelope.
// Internal causes are never serialized; only the user-safe message is.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorMessage(w, apperr.HTTPStatus(err), string(apperr.KindOf(err)), apperr.MessageOf(err))
}

// WriteBadRequest writes a validation error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, string(apperr.KindValidation), message)
}

// WriteUnauthorized writes an unauthenticated error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, string(apperr.KindUnauthenticated), message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, string(apperr.KindForbidden), message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, string(apperr.KindNotFound), message)
}

// WriteMethodNotAllowed writes a 405 for unsupported methods
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, string(apperr.KindConflict), message)
}

// WriteInternalError writes a 500. The cause goes to the log, not the client.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).Error("internal server error")
	WriteErrorMessage(w, http.StatusInternalServerError, string(apperr.KindInternal), "internal server error")
}
