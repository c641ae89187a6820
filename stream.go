package webpcodec

import (
	"log/slog"

	"github.com/deepteams/webpcodec/animation"
)

// Handle identifies a streaming encoder session. Handles are never
// reused; the zero Handle is always invalid.
type Handle = animation.Handle

var sessions = animation.NewArena()

// SetLogger sets the logger used for streaming session events. Sessions
// log nothing by default.
func SetLogger(l *slog.Logger) { sessions.SetLogger(l) }

// NewStreamEncoder opens a session that accumulates frames of a
// width x height animation. A nil opts selects DefaultStreamOptions.
// Without hasAlpha every frame is encoded opaque.
func NewStreamEncoder(width, height int, hasAlpha bool, opts *StreamOptions) (Handle, error) {
	o := DefaultStreamOptions()
	if opts != nil {
		o = *opts
	}
	return sessions.Create(width, height, hasAlpha, o)
}

// StreamAddFrame encodes pb as the next frame of session h, shown for
// durationMs milliseconds. The buffer must match the session canvas. An
// unknown or disposed handle is reported before any problem with pb.
func StreamAddFrame(h Handle, pb *PixelBuffer, durationMs int) error {
	if _, err := sessions.State(h); err != nil {
		return err
	}
	if err := pb.Validate(); err != nil {
		return err
	}
	return sessions.AddFrame(h, pb.NRGBA(), durationMs)
}

// StreamFinalize assembles the frames of session h into an animated WebP
// file. The session accepts no more frames afterwards but must still be
// released with StreamDispose.
func StreamFinalize(h Handle) ([]byte, error) {
	return sessions.Finalize(h)
}

// StreamDispose releases session h. It is valid in any state.
func StreamDispose(h Handle) error {
	return sessions.Dispose(h)
}

// StreamTraceID returns the trace ID logged with every event of
// session h.
func StreamTraceID(h Handle) (string, error) {
	return sessions.TraceID(h)
}
