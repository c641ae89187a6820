package animation

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidHandle = errors.New("animation: invalid session handle")
	ErrInvalidState  = errors.New("animation: operation not valid in the session state")

	// ErrHandlesExhausted is returned by Create once every generation
	// number has been handed out.
	ErrHandlesExhausted = errors.New("animation: session handles exhausted")
)

// Handle names a session of an Arena. It packs a generation number, taken
// from a counter that only grows, above the slot index, so a handle is
// never valid again once its session is gone. The counter never wraps:
// Create fails once it is spent. The zero Handle is invalid.
type Handle uint64

func newHandle(gen, slot uint32) Handle { return Handle(uint64(gen)<<32 | uint64(slot)) }

func (h Handle) generation() uint32 { return uint32(h >> 32) }
func (h Handle) slot() uint32       { return uint32(h) }

func (h Handle) String() string { return fmt.Sprintf("%d.%d", h.slot(), h.generation()) }

// State is the lifecycle position of a session.
type State int

const (
	StateCreated State = iota
	StateAccumulating
	StateFinalized
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAccumulating:
		return "accumulating"
	case StateFinalized:
		return "finalized"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type session struct {
	mu       sync.Mutex
	state    State
	width    int
	height   int
	hasAlpha bool
	enc      *Encoder
	starts   []int // timestamp of each committed frame, ms
	elapsed  int
	traceID  string
}

type arenaSlot struct {
	gen uint32
	s   *session
}

// Arena owns streaming encoder sessions. Operations on one session are
// serialized by its own mutex; distinct sessions proceed in parallel. The
// zero value is ready to use and logs nothing.
type Arena struct {
	mu    sync.Mutex
	slots []arenaSlot
	free  []uint32
	gen   uint32
	live  int
	log   *slog.Logger
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{}
}

// SetLogger sets the logger for lifecycle events. nil restores the
// silent default.
func (a *Arena) SetLogger(l *slog.Logger) {
	a.mu.Lock()
	a.log = l
	a.mu.Unlock()
}

func (a *Arena) logger() *slog.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.log
}

// Len returns the number of sessions that have not been disposed.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Create opens a session for width x height frames. Frames of sessions
// without alpha are coded as opaque.
func (a *Arena) Create(width, height int, hasAlpha bool, o StreamOptions) (Handle, error) {
	enc, err := NewEncoder(width, height, &EncodeOptions{StreamOptions: o})
	if err != nil {
		return 0, err
	}
	s := &session{
		width:    width,
		height:   height,
		hasAlpha: hasAlpha,
		enc:      enc,
		traceID:  uuid.New().String(),
	}

	a.mu.Lock()
	if a.gen == math.MaxUint32 {
		a.mu.Unlock()
		return 0, ErrHandlesExhausted
	}
	a.gen++
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot{})
	}
	a.slots[idx] = arenaSlot{gen: a.gen, s: s}
	a.live++
	h := newHandle(a.gen, idx)
	a.mu.Unlock()

	opts := enc.opts
	a.logger().Info("animation: session created",
		"session", h,
		"trace_id", s.traceID,
		"width", width,
		"height", height,
		"alpha", hasAlpha,
		"lossless", opts.Lossless,
		"quality", opts.Quality,
		"method", opts.Method,
	)
	return h, nil
}

func (a *Arena) lookup(h Handle) (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := h.slot()
	if h == 0 || int(i) >= len(a.slots) || a.slots[i].gen != h.generation() || a.slots[i].s == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	return a.slots[i].s, nil
}

// TraceID returns the identifier that tags the session's log lines.
func (a *Arena) TraceID(h Handle) (string, error) {
	s, err := a.lookup(h)
	if err != nil {
		return "", err
	}
	return s.traceID, nil
}

// State returns the lifecycle state of a session.
func (a *Arena) State(h Handle) (State, error) {
	s, err := a.lookup(h)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return 0, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	return s.state, nil
}

// acquire looks up and locks a live session. The caller unlocks s.mu.
func (a *Arena) acquire(h Handle) (*session, error) {
	s, err := a.lookup(h)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	return s, nil
}

// AddFrame codes img and appends it for durationMs milliseconds. Negative
// durations count as zero. A rejected frame leaves the session unchanged.
func (a *Arena) AddFrame(h Handle, img *image.NRGBA, durationMs int) error {
	log := a.logger()
	s, err := a.acquire(h)
	if err != nil {
		log.Warn("animation: frame for unknown session", "session", h)
		return err
	}
	defer s.mu.Unlock()
	log = log.With("session", h, "trace_id", s.traceID)

	if s.state == StateFinalized {
		log.Warn("animation: frame added after finalize")
		return fmt.Errorf("%w: add frame to a %v session", ErrInvalidState, s.state)
	}
	if img == nil {
		return fmt.Errorf("%w: nil frame", ErrDimensionMismatch)
	}
	if w, ht := img.Bounds().Dx(), img.Bounds().Dy(); w != s.width || ht != s.height {
		log.Warn("animation: frame size mismatch", "frame_width", w, "frame_height", ht)
		return fmt.Errorf("%w: %dx%d frame for a %dx%d session", ErrDimensionMismatch, w, ht, s.width, s.height)
	}
	frame := img
	if !s.hasAlpha {
		frame = cloneNRGBA(toNRGBA(img))
		for i := 3; i < len(frame.Pix); i += 4 {
			frame.Pix[i] = 0xff
		}
	}
	durationMs = max(durationMs, 0)
	if err := s.enc.AddFrame(frame, time.Duration(durationMs)*time.Millisecond); err != nil {
		log.Warn("animation: frame rejected", "error", err)
		return err
	}
	s.starts = append(s.starts, s.elapsed)
	s.elapsed += durationMs
	s.state = StateAccumulating
	log.Debug("animation: frame added",
		"frame", len(s.starts)-1,
		"timestamp_ms", s.starts[len(s.starts)-1],
		"duration_ms", durationMs,
	)
	return nil
}

// Finalize assembles the animation. On success the session keeps only
// its state, so later frames fail with ErrInvalidState. A session with no
// frames fails with ErrNoFrames and stays open.
func (a *Arena) Finalize(h Handle) ([]byte, error) {
	log := a.logger()
	s, err := a.acquire(h)
	if err != nil {
		log.Warn("animation: finalize of unknown session", "session", h)
		return nil, err
	}
	defer s.mu.Unlock()
	log = log.With("session", h, "trace_id", s.traceID)

	if s.state == StateFinalized {
		return nil, fmt.Errorf("%w: finalize a %v session", ErrInvalidState, s.state)
	}
	if len(s.starts) == 0 {
		log.Warn("animation: finalize without frames")
		return nil, ErrNoFrames
	}
	data, err := s.enc.Assemble()
	if err != nil {
		log.Error("animation: assembling failed", "error", err)
		return nil, err
	}
	s.state = StateFinalized
	s.enc = nil
	log.Info("animation: session finalized",
		"frames", len(s.starts),
		"duration_ms", s.elapsed,
		"bytes", len(data),
	)
	return data, nil
}

// Dispose releases a session in any state. The handle is invalid
// afterwards.
func (a *Arena) Dispose(h Handle) error {
	log := a.logger()
	a.mu.Lock()
	i := h.slot()
	if h == 0 || int(i) >= len(a.slots) || a.slots[i].gen != h.generation() || a.slots[i].s == nil {
		a.mu.Unlock()
		log.Warn("animation: dispose of unknown session", "session", h)
		return fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	s := a.slots[i].s
	a.slots[i].s = nil
	a.free = append(a.free, i)
	a.live--
	a.mu.Unlock()

	s.mu.Lock()
	prev := s.state
	s.state = StateDisposed
	s.enc = nil
	s.starts = nil
	s.mu.Unlock()
	log.Info("animation: session disposed", "session", h, "trace_id", s.traceID, "state", prev)
	return nil
}
