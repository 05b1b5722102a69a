package httpapi

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/BrandonDHaskell/facegate/internal/facegate/service"
	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

//go:embed static/index.html
var static embed.FS

// Runner controls the capture session.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	SessionID() string
}

// Display is the read side of the frame/status hub.
type Display interface {
	Status() types.Status
	Latest() (jpeg []byte, seq uint64)
	Subscribe() (<-chan []byte, func())
}

type AccessSnapshotter interface {
	Snapshot() map[string]time.Time
	Cooldown() time.Duration
}

type Dependencies struct {
	Logger  *slog.Logger
	Addr    string
	Display Display
	Runner  Runner
	Access  AccessSnapshotter
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Exit is called after /v1/exit has stopped capture and replied.
	Exit func()
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	display    Display
	runner     Runner
	access     AccessSnapshotter
	exit       func()
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger:  logger,
		mux:     mux,
		display: d.Display,
		runner:  d.Runner,
		access:  d.Access,
		exit:    d.Exit,
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/frame.jpg", s.handleFrame)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/access", s.handleAccess)
	mux.HandleFunc("POST /v1/start", s.handleStart)
	mux.HandleFunc("POST /v1/stop", s.handleStop)
	mux.HandleFunc("POST /v1/exit", s.handleExit)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	handler := loggingMiddleware(logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Shutdown.  Request contexts derive from ctx, so open
// streams end when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	jpeg, seq := s.display.Latest()
	if seq == 0 {
		writeError(w, http.StatusNotFound, "no_frame", "no frame captured yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(jpeg)
}

type statusResponse struct {
	types.Status
	Running bool `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.display.Status(), Running: s.runner.Running()}
	if wantsProtobuf(r) {
		msg, err := statusStruct(resp)
		if err != nil {
			s.logger.Error("status encode failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type accessEntry struct {
	Name              string    `json:"name"`
	LastAccess        time.Time `json:"last_access"`
	CooldownRemaining float64   `json:"cooldown_remaining_s"`
}

type accessResponse struct {
	CooldownSeconds float64       `json:"cooldown_s"`
	Entries         []accessEntry `json:"entries"`
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	cooldown := s.access.Cooldown()
	now := time.Now()

	resp := accessResponse{CooldownSeconds: cooldown.Seconds(), Entries: []accessEntry{}}
	for name, last := range s.access.Snapshot() {
		remaining := cooldown - now.Sub(last)
		if remaining < 0 {
			remaining = 0
		}
		resp.Entries = append(resp.Entries, accessEntry{
			Name:              name,
			LastAccess:        last.UTC(),
			CooldownRemaining: remaining.Seconds(),
		})
	}
	sort.Slice(resp.Entries, func(i, j int) bool { return resp.Entries[i].Name < resp.Entries[j].Name })

	writeJSON(w, http.StatusOK, resp)
}

type controlResponse struct {
	Running   bool   `json:"running"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The session outlives this request.
	if err := s.runner.Start(context.WithoutCancel(r.Context())); err != nil {
		if errors.Is(err, service.ErrCameraUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "camera_unavailable", err.Error())
			return
		}
		s.logger.Error("start error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Running: s.runner.Running(), SessionID: s.runner.SessionID()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.runner.Stop()
	writeJSON(w, http.StatusOK, controlResponse{Running: false})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	s.runner.Stop()
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
	if s.exit != nil {
		s.logger.Info("exit requested", "from", r.RemoteAddr)
		s.exit()
	}
}
