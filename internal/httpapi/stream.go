package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"
)

// trackingWriter records whether any byte reached the client, after which the
// status line can no longer change.
type trackingWriter struct {
	w       io.Writer
	written bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.written = true
	}
	return t.w.Write(p)
}

// serveStream runs a streaming service call with the request joined to the
// server base context, optional timeout and per-request line logging. Errors
// returned before the first byte are mapped to JSON errors; later ones only
// end the stream.
func serveStream(w http.ResponseWriter, r *http.Request, op, contentType string, fields map[string]any, run func(ctx context.Context, out io.Writer, flush func()) error) {
	w.Header().Set("Content-Type", contentType)
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	start := time.Now()
	lvl := requestLogLevel(r)
	tw := &trackingWriter{w: w}
	out := io.Writer(tw)
	if lvl >= LevelDebug {
		out = io.MultiWriter(tw, &loggingLineWriter{prefix: op})
	}
	if lvl >= LevelInfo {
		logRequestStart(r, op, fields)
	}

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if requestTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, time.Duration(requestTimeout)*time.Second)
		defer tcancel()
	}

	err := run(ctx, out, flush)
	status, outcome := http.StatusOK, streamOK
	switch {
	case err == nil:
	case r.Context().Err() != nil || serverBaseCtx.Err() != nil:
		// client disconnect or shutdown: nobody is listening
		status, outcome = 499, streamClientGone
	case tw.written:
		status, outcome = http.StatusInternalServerError, streamAborted
	case ctx.Err() == context.DeadlineExceeded:
		status, outcome = http.StatusGatewayTimeout, streamTimeout
		writeJSONError(w, status, "request timed out")
	default:
		status, outcome = writeServiceError(w, err), streamRejected
	}
	streamsTotal.WithLabelValues(op, outcome).Inc()
	if (err != nil && lvl >= LevelError) || lvl >= LevelInfo {
		logRequestEnd(r, op, status, start, err)
	}
}
