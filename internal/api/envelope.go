package api

import (
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the value of the "v" field. Clients refuse versions
// they do not know.
const EnvelopeVersion = 1

// Envelope is the JSON shape of every API response.
//
// Success:         {"v":1,"success":true,"data":...}
// Simple error:    {"v":1,"success":false,"error":"..."}
// Detailed error:  {"v":1,"success":false,"code":"...","message":"...","details":...}
type Envelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer wraps huma response bodies in an Envelope.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	if apiErr, ok := v.(*APIError); ok {
		return errorEnvelope(apiErr), nil
	}
	return Envelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
}

func errorEnvelope(e *APIError) Envelope {
	if e.Code == "" {
		return Envelope{Version: EnvelopeVersion, Error: e.Message}
	}
	return Envelope{
		Version: EnvelopeVersion,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// writeError writes an error envelope outside of huma, for plain chi
// middleware.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	env := errorEnvelope(&APIError{status: status, Code: code, Message: message})
	_ = json.NewEncoder(w).Encode(env) //nolint:errcheck // client went away
}
