// Package api contains the HTTP handlers, middleware and response envelopes
// of the relay.
package api

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes. HTTP status is derived from the
// code, never the reverse.
const (
	codeUnauthenticated = "unauthenticated"
	codeForbidden       = "forbidden"
	codeBadRequest      = "bad_request"
	codeNotFound        = "not_found"
	codeNoTargetToken   = "no_target_token"
	codeInvalidData     = "invalid_data"
	codeFCMError        = "fcm_error"
	codeInternal        = "internal_server_error"
)

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding a value we built ourselves; an encode failure here means the
	// response is already beyond saving.
	_ = json.NewEncoder(w).Encode(body)
}
