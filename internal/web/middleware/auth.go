package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/config"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
)

// APIKeyAuth returns middleware that resolves the request owner from the
// X-API-Key header. If RequireAPIKey is false, every request runs as
// DefaultOwner. Missing and unknown keys are both rejected with 401.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	// Validated by config.Load.
	keys, _ := cfg.OwnerKeys()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r.WithContext(withOwner(r, cfg.DefaultOwner)))
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				unauthorized(w)
				return
			}

			owner, ok := lookupOwner(apiKey, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(withOwner(r, owner)))
		})
	}
}

func withOwner(r *http.Request, owner string) context.Context {
	ctx := core.ContextWithOwner(r.Context(), owner)
	return logging.ContextWith(ctx, "owner_id", owner)
}

// lookupOwner finds the owner of key. Every configured key is compared in
// constant time so the comparison time does not depend on which key
// matches, or whether any does.
func lookupOwner(key string, keys map[string]string) (string, bool) {
	var owner string
	found := 0
	for validKey, o := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			owner = o
			found = 1
		}
	}
	return owner, found == 1
}

func unauthorized(w http.ResponseWriter) {
	msg := core.MapError(core.ErrUnauthorized)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error":     msg.Message,
		"message":   msg.Message,
		"action":    msg.Action,
		"code":      msg.Code,
		"retryable": false,
	})
}
