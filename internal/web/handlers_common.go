// Package web provides HTTP handlers for the sync engine.
// This file contains shared utilities and helper functions used across handlers.
package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// MaxBodySize is the maximum accepted request body (1MB).
const MaxBodySize = 1 << 20

// validate checks the `validate` tags of decoded request bodies.
var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON decodes the request body into v and validates it. Errors are
// classified as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return decodeStrict(body, v)
}

// readBody reads at most MaxBodySize bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.Validationf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, core.Validationf("read request body: %v", err)
	}
	return body, nil
}

// decodeStrict strictly decodes body into v, rejecting unknown fields, and
// checks its `validate` tags.
func decodeStrict(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Validationf("request body is empty")
		}
		return core.Validationf("invalid request body: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

// owner returns the authenticated owner set by APIKeyAuth.
func owner(r *http.Request) string {
	return core.OwnerFromContext(r.Context())
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus is writeJSON with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStatus returns the state of the upstream and invocation limiters.
// Used for monitoring and to check whether more jobs can start.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"upstream":    s.service.LimiterStatus(),
		"invocations": s.service.InvocationStatus(),
	})
}
