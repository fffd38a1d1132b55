package httpapi

import (
	"context"
	"net/http"
)

// baseCtx is canceled on shutdown; in-flight insight requests observe it.
var baseCtx = context.Background()

// SetBaseContext sets the process-level context. nil resets to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	baseCtx = ctx
}

// requestContext is canceled when either the client goes away or the
// process shuts down. The returned cancel must be called.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
