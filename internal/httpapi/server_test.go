package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/facegate/internal/display"
	"github.com/BrandonDHaskell/facegate/internal/facegate/service"
	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
	"github.com/BrandonDHaskell/facegate/internal/httpapi"
)

type fakeRunner struct {
	mu       sync.Mutex
	running  bool
	startErr error
	starts   int
	stops    int
}

func (f *fakeRunner) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeRunner) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRunner) SessionID() string {
	if f.Running() {
		return "session-1"
	}
	return ""
}

type testEnv struct {
	ts     *httptest.Server
	hub    *display.Hub
	runner *fakeRunner
	access *service.AccessControl
	exited chan struct{}
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		hub:    display.NewHub(),
		runner: &fakeRunner{},
		access: service.NewAccessControl(service.NewAccessPolicy([]string{"alice"}, 5*time.Second)),
		exited: make(chan struct{}),
	}
	var once sync.Once

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Addr:    ":0",
		Display: env.hub,
		Runner:  env.runner,
		Access:  env.access,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "facegate_frames_processed_total 0")
		}),
		Exit: func() { once.Do(func() { close(env.exited) }) },
	})

	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ── Status ───────────────────────────────────────────────────────────────────

func TestStatus_InitiallyStopped(t *testing.T) {
	env := newTestServer(t)

	resp := get(t, env.ts.URL+"/v1/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Text     string `json:"text"`
		Category string `json:"category"`
		Running  bool   `json:"running"`
	}
	decode(t, resp, &body)

	if body.Text != "System stopped" {
		t.Errorf("expected text=System stopped, got %q", body.Text)
	}
	if body.Category != "neutral" {
		t.Errorf("expected category=neutral, got %q", body.Category)
	}
	if body.Running {
		t.Error("expected running=false")
	}
}

func TestStatus_ReflectsPublishedDecision(t *testing.T) {
	env := newTestServer(t)

	st, _ := types.DecisionGranted.Status()
	env.hub.PublishStatus(st)

	var body struct {
		Text     string `json:"text"`
		Category string `json:"category"`
	}
	decode(t, get(t, env.ts.URL+"/v1/status"), &body)

	if body.Text != "Access GRANTED" || body.Category != "success" {
		t.Errorf("unexpected status %+v", body)
	}
}

func TestStatus_Protobuf(t *testing.T) {
	env := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/v1/status", nil)
	req.Header.Set("Accept", "application/x-protobuf")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Fatalf("expected protobuf content type, got %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)

	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fields := msg.GetFields()
	if got := fields["text"].GetStringValue(); got != "System stopped" {
		t.Errorf("expected text=System stopped, got %q", got)
	}
	if got := fields["running"].GetBoolValue(); got {
		t.Error("expected running=false")
	}
}

// ── Control ──────────────────────────────────────────────────────────────────

func TestStart_OK(t *testing.T) {
	env := newTestServer(t)

	resp := post(t, env.ts.URL+"/v1/start")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Running   bool   `json:"running"`
		SessionID string `json:"session_id"`
	}
	decode(t, resp, &body)

	if !body.Running || body.SessionID != "session-1" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestStart_CameraUnavailable(t *testing.T) {
	env := newTestServer(t)
	env.runner.startErr = fmt.Errorf("%w: device 0", service.ErrCameraUnavailable)

	resp := post(t, env.ts.URL+"/v1/start")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	decode(t, resp, &body)
	if body.Error != "camera_unavailable" {
		t.Errorf("expected error=camera_unavailable, got %q", body.Error)
	}
}

func TestStart_OtherError(t *testing.T) {
	env := newTestServer(t)
	env.runner.startErr = errors.New("boom")

	resp := post(t, env.ts.URL+"/v1/start")
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestStop(t *testing.T) {
	env := newTestServer(t)
	post(t, env.ts.URL+"/v1/start").Body.Close()

	resp := post(t, env.ts.URL+"/v1/stop")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if env.runner.Running() {
		t.Error("expected runner stopped")
	}
}

func TestExit_StopsAndSignals(t *testing.T) {
	env := newTestServer(t)
	post(t, env.ts.URL+"/v1/start").Body.Close()

	resp := post(t, env.ts.URL+"/v1/exit")
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case <-env.exited:
	case <-time.After(2 * time.Second):
		t.Fatal("exit func not called")
	}
	if env.runner.Running() {
		t.Error("expected runner stopped before exit")
	}
}

func TestControl_WrongMethod(t *testing.T) {
	env := newTestServer(t)

	resp := get(t, env.ts.URL+"/v1/start")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

// ── Frames ───────────────────────────────────────────────────────────────────

func TestFrame_NotFoundBeforeFirst(t *testing.T) {
	env := newTestServer(t)

	resp := get(t, env.ts.URL+"/v1/frame.jpg")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestFrame_LatestFrame(t *testing.T) {
	env := newTestServer(t)
	env.hub.PublishFrame([]byte("frame-1"))
	env.hub.PublishFrame([]byte("frame-2"))

	resp := get(t, env.ts.URL+"/v1/frame.jpg")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "frame-2" {
		t.Errorf("expected frame-2, got %q", data)
	}
}

func TestStream_SendsLatestThenLive(t *testing.T) {
	env := newTestServer(t)
	env.hub.PublishFrame([]byte("first"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/v1/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	mt, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mt != "multipart/x-mixed-replace" {
		t.Fatalf("unexpected content type %q: %v", resp.Header.Get("Content-Type"), err)
	}
	mr := multipart.NewReader(resp.Body, params["boundary"])

	readPart := func() string {
		t.Helper()
		p, err := mr.NextPart()
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		if ct := p.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("expected image/jpeg part, got %q", ct)
		}
		data, _ := io.ReadAll(p)
		return string(data)
	}

	if got := readPart(); got != "first" {
		t.Fatalf("expected first, got %q", got)
	}

	// The subscriber registers before the first part is written, so a frame
	// published now is delivered.
	env.hub.PublishFrame([]byte("second"))
	if got := readPart(); got != "second" {
		t.Fatalf("expected second, got %q", got)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := env.hub.Subscribers(); n != 0 {
		t.Errorf("expected subscriber released, still %d", n)
	}
}

// ── Access, page, metrics ────────────────────────────────────────────────────

func TestAccess_Snapshot(t *testing.T) {
	env := newTestServer(t)
	env.access.Decide("alice", time.Now())

	var body struct {
		CooldownSeconds float64 `json:"cooldown_s"`
		Entries         []struct {
			Name              string  `json:"name"`
			CooldownRemaining float64 `json:"cooldown_remaining_s"`
		} `json:"entries"`
	}
	decode(t, get(t, env.ts.URL+"/v1/access"), &body)

	if body.CooldownSeconds != 5 {
		t.Errorf("expected cooldown_s=5, got %v", body.CooldownSeconds)
	}
	if len(body.Entries) != 1 || body.Entries[0].Name != "alice" {
		t.Fatalf("unexpected entries %+v", body.Entries)
	}
	if r := body.Entries[0].CooldownRemaining; r <= 0 || r > 5 {
		t.Errorf("expected remaining cooldown in (0,5], got %v", r)
	}
}

func TestAccess_EmptySnapshot(t *testing.T) {
	env := newTestServer(t)

	resp := get(t, env.ts.URL+"/v1/access")
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `"entries":[]`) {
		t.Errorf("expected empty entries array, got %s", data)
	}
}

func TestIndexPage(t *testing.T) {
	env := newTestServer(t)

	resp := get(t, env.ts.URL+"/")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "/v1/stream") {
		t.Error("expected page to embed the stream")
	}
}

func TestMetricsMounted(t *testing.T) {
	env := newTestServer(t)

	resp := get(t, env.ts.URL+"/metrics")
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "facegate_frames_processed_total") {
		t.Errorf("unexpected metrics body %s", data)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t)

	resp := get(t, env.ts.URL+"/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
