package web

import (
	"context"
	"net/http"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
)

// WithRequestMetadata adds the client IP to the loggers derived from ctx.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := clientKey(r) // Already processed by TrustedRealIP
	return logging.ContextWith(ctx, "client_ip", ip)
}
