package httpapi

import "context"

// serverBaseCtx is canceled when the daemon shuts down. Streams started by
// handlers derive from it so a shutdown stops running generations.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-level base context. Nil restores
// context.Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context canceled as soon as base or req is done.
// Values come from req. The cancel func must be called when the handler ends.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
