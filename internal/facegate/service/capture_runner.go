package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/facegate/internal/facegate/pipeline"
	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

var ErrCameraUnavailable = errors.New("camera unavailable")

// Source opens the camera.  Each successful Open is paired with exactly one
// Camera.Close.
type Source interface {
	Open() (Camera, error)
}

type Camera interface {
	// Read returns the next frame, or ok=false once the stream has ended or
	// the device stopped delivering frames.
	Read() (frame CapturedFrame, ok bool)
	Close() error
}

type CapturedFrame interface {
	pipeline.Frame
	JPEG() ([]byte, error)
	Close() error
}

type Processor interface {
	Process(frame pipeline.Frame) pipeline.Result
}

// Sink is the presentation side.  Both methods must return without waiting
// on the reader.
type Sink interface {
	PublishFrame(jpeg []byte)
	PublishStatus(s types.Status)
}

type RunnerDependencies struct {
	Logger    *slog.Logger
	Source    Source
	Processor Processor
	Sink      Sink
	// OnState is called with true when a session starts and false when its
	// loop exits.  Optional.
	OnState func(running bool)
}

// CaptureRunner owns the camera while a session runs and feeds frames
// through the pipeline.  Start and Stop may be called from any goroutine.
type CaptureRunner struct {
	logger  *slog.Logger
	source  Source
	proc    Processor
	sink    Sink
	onState func(bool)

	mu      sync.Mutex
	current *session
}

type session struct {
	id      string
	running atomic.Bool
	done    chan struct{}

	// statusMu orders decision statuses against the stop status so nothing
	// from the session lands after "System stopped".
	statusMu sync.Mutex
}

func NewCaptureRunner(d RunnerDependencies) *CaptureRunner {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureRunner{
		logger:  logger,
		source:  d.Source,
		proc:    d.Processor,
		sink:    d.Sink,
		onState: d.OnState,
	}
}

// Start opens the camera and begins a capture session.  A second Start while
// a session is running does nothing.  If the previous session is still
// winding down, Start waits for it to release the camera first.
func (r *CaptureRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.current; prev != nil {
		if prev.running.Load() {
			return nil
		}
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cam, err := r.source.Open()
	if err != nil {
		r.logger.Error("camera open failed", "err", err)
		r.publishStatus(types.StatusCameraUnavailable, "")
		if !errors.Is(err, ErrCameraUnavailable) {
			err = fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
		}
		return err
	}

	s := &session{id: uuid.NewString(), done: make(chan struct{})}
	s.running.Store(true)
	r.current = s

	r.logger.Info("capture started", "session", s.id)
	r.notify(true)

	go r.loop(ctx, s, cam)
	return nil
}

// Stop asks the current session to end.  The loop notices before its next
// camera read; Stop does not wait for it.
func (r *CaptureRunner) Stop() {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()

	if s == nil {
		r.publishStatus(types.StatusStopped, "")
		return
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.running.Swap(false) {
		r.logger.Info("capture stop requested", "session", s.id)
	}
	r.publishStatus(types.StatusStopped, s.id)
}

// Wait blocks until the current session's loop has exited or ctx ends.
func (r *CaptureRunner) Wait(ctx context.Context) error {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *CaptureRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.running.Load()
}

// SessionID returns the id of the running session, or "".
func (r *CaptureRunner) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || !r.current.running.Load() {
		return ""
	}
	return r.current.id
}

func (r *CaptureRunner) loop(ctx context.Context, s *session, cam Camera) {
	frames := 0
	defer close(s.done)
	defer func() {
		s.running.Store(false)
		r.notify(false)
		r.logger.Info("capture ended", "session", s.id, "frames", frames)
	}()
	defer func() {
		if err := cam.Close(); err != nil {
			r.logger.Warn("camera release failed", "session", s.id, "err", err)
		}
	}()
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("capture loop panicked", "session", s.id, "panic", v)
			r.publishStatus(types.Status{Text: "Capture failed", Category: types.CategoryError}, s.id)
		}
	}()

	for s.running.Load() && ctx.Err() == nil {
		frame, ok := cam.Read()
		if !ok {
			r.logger.Info("capture source ended", "session", s.id)
			return
		}
		frames++
		r.handleFrame(s, frame)
	}
}

func (r *CaptureRunner) handleFrame(s *session, frame CapturedFrame) {
	defer frame.Close()

	res := r.proc.Process(frame)
	if st, ok := res.Decision.Status(); ok {
		s.statusMu.Lock()
		if s.running.Load() {
			r.publishStatus(st, s.id)
		}
		s.statusMu.Unlock()
	}

	jpeg, err := frame.JPEG()
	if err != nil {
		r.logger.Warn("frame encode failed", "session", s.id, "err", err)
		return
	}
	r.sink.PublishFrame(jpeg)
}

func (r *CaptureRunner) publishStatus(st types.Status, sessionID string) {
	if r.sink == nil {
		return
	}
	st.SessionID = sessionID
	st.UpdatedAt = time.Now().UTC()
	r.sink.PublishStatus(st)
}

func (r *CaptureRunner) notify(running bool) {
	if r.onState != nil {
		r.onState(running)
	}
}
