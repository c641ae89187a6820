package animation

import (
	"bytes"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newLosslessSession(t *testing.T, a *Arena, w, h int, alpha bool) Handle {
	t.Helper()
	o := DefaultStreamOptions()
	o.Lossless = true
	o.Method = 1
	hd, err := a.Create(w, h, alpha, o)
	require.NoError(t, err)
	return hd
}

func TestArena_Lifecycle(t *testing.T) {
	a := NewArena()
	h := newLosslessSession(t, a, 8, 8, true)
	require.NotZero(t, h)
	require.Equal(t, 1, a.Len())

	st, err := a.State(h)
	require.NoError(t, err)
	require.Equal(t, StateCreated, st)

	require.NoError(t, a.AddFrame(h, solid(8, 8, color.NRGBA{1, 2, 3, 255}), 50))
	st, _ = a.State(h)
	require.Equal(t, StateAccumulating, st)

	data, err := a.Finalize(h)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	st, _ = a.State(h)
	require.Equal(t, StateFinalized, st)

	require.ErrorIs(t, a.AddFrame(h, solid(8, 8, color.NRGBA{}), 50), ErrInvalidState)
	_, err = a.Finalize(h)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, a.Dispose(h))
	require.Equal(t, 0, a.Len())
	require.ErrorIs(t, a.AddFrame(h, solid(8, 8, color.NRGBA{}), 50), ErrInvalidHandle)
	_, err = a.Finalize(h)
	require.ErrorIs(t, err, ErrInvalidHandle)
	require.ErrorIs(t, a.Dispose(h), ErrInvalidHandle)
	_, err = a.TraceID(h)
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestArena_DisposeWithoutFinalize(t *testing.T) {
	a := NewArena()
	h := newLosslessSession(t, a, 4, 4, false)
	require.NoError(t, a.Dispose(h))
	_, err := a.State(h)
	require.ErrorIs(t, err, ErrInvalidHandle)

	h = newLosslessSession(t, a, 4, 4, false)
	require.NoError(t, a.AddFrame(h, solid(4, 4, color.NRGBA{A: 255}), 10))
	require.NoError(t, a.Dispose(h))
	require.Equal(t, 0, a.Len())
}

func TestArena_NoFrames(t *testing.T) {
	a := NewArena()
	h := newLosslessSession(t, a, 4, 4, false)
	_, err := a.Finalize(h)
	require.ErrorIs(t, err, ErrNoFrames)

	st, err := a.State(h)
	require.NoError(t, err)
	require.Equal(t, StateCreated, st)

	require.NoError(t, a.AddFrame(h, solid(4, 4, color.NRGBA{A: 255}), 10))
	_, err = a.Finalize(h)
	require.NoError(t, err)
}

func TestArena_DimensionMismatch(t *testing.T) {
	a := NewArena()
	h := newLosslessSession(t, a, 6, 4, true)
	require.NoError(t, a.AddFrame(h, solid(6, 4, color.NRGBA{9, 9, 9, 255}), 10))
	require.ErrorIs(t, a.AddFrame(h, solid(4, 6, color.NRGBA{}), 10), ErrDimensionMismatch)
	require.ErrorIs(t, a.AddFrame(h, solid(6, 5, color.NRGBA{}), 10), ErrDimensionMismatch)
	require.ErrorIs(t, a.AddFrame(h, nil, 10), ErrDimensionMismatch)

	data, err := a.Finalize(h)
	require.NoError(t, err)
	anim, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, anim.Frames, 1)
}

func TestArena_OrderAndDurations(t *testing.T) {
	a := NewArena()
	h := newLosslessSession(t, a, 16, 16, true)
	durations := []int{70, 10, 250, 40, 0, 33}
	var frames []*image.NRGBA
	for i, d := range durations {
		f := scene(16, 16, 2*i, color.NRGBA{uint8(40 * i), 0, 255, 255})
		frames = append(frames, f)
		require.NoError(t, a.AddFrame(h, f, d))
	}
	data, err := a.Finalize(h)
	require.NoError(t, err)

	anim, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, anim.Frames, len(durations))
	for i, f := range anim.Frames {
		require.Equal(t, time.Duration(durations[i])*time.Millisecond, f.Duration, "frame %d", i)
		require.True(t, bytes.Equal(frames[i].Pix, f.Image.Pix), "frame %d pixels", i)
	}
}

func TestArena_OpaqueSessionDropsAlpha(t *testing.T) {
	a := NewArena()
	h := newLosslessSession(t, a, 4, 4, false)
	src := solid(4, 4, color.NRGBA{10, 20, 30, 0})
	require.NoError(t, a.AddFrame(h, src, 10))
	require.Equal(t, uint8(0), src.Pix[3], "caller's frame modified")

	data, err := a.Finalize(h)
	require.NoError(t, err)
	anim, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, color.NRGBA{10, 20, 30, 255}, anim.Frames[0].Image.NRGBAAt(2, 2))
}

func TestArena_HandlesNeverReused(t *testing.T) {
	a := NewArena()
	seen := map[Handle]bool{}
	var old []Handle
	for i := 0; i < 50; i++ {
		h := newLosslessSession(t, a, 2, 2, false)
		require.False(t, seen[h], "handle %v issued twice", h)
		seen[h] = true
		old = append(old, h)
		require.NoError(t, a.Dispose(h))
	}
	for _, h := range old {
		require.ErrorIs(t, a.AddFrame(h, solid(2, 2, color.NRGBA{}), 1), ErrInvalidHandle)
	}
	require.ErrorIs(t, a.Dispose(0), ErrInvalidHandle)
	require.ErrorIs(t, a.Dispose(newHandle(1, 999)), ErrInvalidHandle)
}

func TestArena_GenerationNeverWraps(t *testing.T) {
	a := NewArena()
	a.gen = math.MaxUint32 - 1
	last := newLosslessSession(t, a, 2, 2, false)
	require.Equal(t, uint32(math.MaxUint32), last.generation())
	require.NoError(t, a.Dispose(last))

	_, err := a.Create(2, 2, false, DefaultStreamOptions())
	require.ErrorIs(t, err, ErrHandlesExhausted)
	require.Equal(t, 0, a.Len())
	require.ErrorIs(t, a.Dispose(last), ErrInvalidHandle)
	require.ErrorIs(t, a.Dispose(newHandle(1, last.slot())), ErrInvalidHandle)
}

func TestArena_LosslessKeepsTransparentColour(t *testing.T) {
	a := NewArena()
	h := newLosslessSession(t, a, 2, 2, true)
	defer a.Dispose(h)
	img := solid(2, 2, color.NRGBA{255, 255, 255, 255})
	img.SetNRGBA(1, 0, color.NRGBA{200, 10, 20, 0})
	require.NoError(t, a.AddFrame(h, img, 40))
	data, err := a.Finalize(h)
	require.NoError(t, err)

	anim, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, anim.Frames, 1)
	require.Equal(t, img.Pix, anim.Frames[0].Image.Pix)
}

func TestArena_CreateRejectsBadCanvas(t *testing.T) {
	a := NewArena()
	_, err := a.Create(0, 10, false, DefaultStreamOptions())
	require.ErrorIs(t, err, ErrInvalidCanvas)
	require.Equal(t, 0, a.Len())
}

func TestArena_TraceIDAndLogging(t *testing.T) {
	var buf bytes.Buffer
	a := NewArena()
	a.SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	h := newLosslessSession(t, a, 4, 4, false)
	id, err := a.TraceID(h)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	require.NoError(t, a.AddFrame(h, solid(4, 4, color.NRGBA{A: 255}), 5))
	_, err = a.Finalize(h)
	require.NoError(t, err)
	require.NoError(t, a.Dispose(h))

	out := buf.String()
	for _, msg := range []string{"session created", "frame added", "session finalized", "session disposed"} {
		require.Contains(t, out, msg)
	}
	require.Contains(t, out, `"trace_id":"`+id+`"`)
}

func TestArena_ParallelSessions(t *testing.T) {
	a := NewArena()
	handles := make([]Handle, 8)
	for i := range handles {
		handles[i] = newLosslessSession(t, a, 8, 8, true)
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(handles))
	for g, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				if err := a.AddFrame(h, solid(8, 8, color.NRGBA{uint8(g), uint8(i), 0, 255}), 10); err != nil {
					errs <- err
					return
				}
			}
			if _, err := a.Finalize(h); err != nil {
				errs <- err
				return
			}
			errs <- a.Dispose(h)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 0, a.Len())
}

func TestArena_DisposeDuringUse(t *testing.T) {
	a := NewArena()
	h := newLosslessSession(t, a, 8, 8, true)
	var (
		wg         sync.WaitGroup
		addErr     error
		disposeErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if addErr = a.AddFrame(h, solid(8, 8, color.NRGBA{uint8(i), 0, 0, 255}), 1); addErr != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		disposeErr = a.Dispose(h)
	}()
	wg.Wait()
	require.NoError(t, disposeErr)
	if addErr != nil {
		require.ErrorIs(t, addErr, ErrInvalidHandle)
	}
	require.Equal(t, 0, a.Len())
}
