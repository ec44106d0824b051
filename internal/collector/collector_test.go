package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"screencapture/internal/agent"
	"screencapture/internal/archive"
	"screencapture/internal/artifact"
	"screencapture/internal/capture"
	"screencapture/internal/config"
	"screencapture/internal/protocol"
	"screencapture/internal/query"
	"screencapture/internal/storage"
)

type fakeQueries struct{}

func (fakeQueries) CountSources() (int, error) { return 2, nil }

func (fakeQueries) CaptureByIndex(n int) (artifact.Artifact, bool, error) {
	if n > 0 {
		return artifact.Artifact{}, false, nil
	}
	return artifact.Artifact{
		Kind: capture.KindMonitor, Name: "Display 0", W: 64, H: 32,
		Image:     artifact.Image{Data: []byte("full-jpeg"), Width: 64, Height: 32},
		Thumbnail: artifact.Image{Data: []byte("thumb-jpeg"), Width: 8, Height: 4},
	}, true, nil
}

func (fakeQueries) CaptureByID(id uint32) (artifact.Artifact, bool, error) {
	return artifact.Artifact{}, false, nil
}

func (fakeQueries) FindActiveWindow() (uint32, bool, error) { return 77, true, nil }

func (fakeQueries) FocusedWindow() (uint32, bool, error) { return 0, false, query.ErrFocusUnsupported }

type fixture struct {
	srv     *Server
	arch    *archive.Archive
	handler http.Handler
	conns   sync.WaitGroup
}

func newFixture(t *testing.T, cfg config.Collector) *fixture {
	t.Helper()
	dir := t.TempDir()
	arch, err := archive.Open(filepath.Join(dir, "collector.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { arch.Close() })
	store, err := storage.NewLocal(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{srv: New(cfg, arch, store, zaptest.NewLogger(t)), arch: arch}
	f.handler = f.srv.Handler()
	t.Cleanup(func() {
		f.srv.agents.closeAll()
		f.conns.Wait()
	})
	return f
}

// serve 在后台处理一个 agent 连接，测试结束前等待其退出
func (f *fixture) serve(conn net.Conn) {
	f.conns.Add(1)
	go func() {
		defer f.conns.Done()
		f.srv.handleConn(conn)
	}()
}

// connectAgent 通过 net.Pipe 接入一个真实的 agent.Agent
func (f *fixture) connectAgent(t *testing.T, deviceID, code string) <-chan struct{} {
	t.Helper()
	agentSide, collectorSide := net.Pipe()
	f.serve(collectorSide)

	a := agent.New(config.Agent{DeviceID: deviceID, EnrollmentCode: code}, fakeQueries{}, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Serve(ctx, agentSide)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return done
}

func (f *fixture) waitAgent(t *testing.T, deviceID string, present bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.srv.agents.get(deviceID); ok == present {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("agent %s present=%v not reached", deviceID, !present)
}

func (f *fixture) do(t *testing.T, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set(adminTokenHeader, token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, config.Collector{})
	w := f.do(t, "GET", "/healthz", "", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("unexpected status: %v", resp["status"])
	}
}

func TestAgentQueries(t *testing.T) {
	f := newFixture(t, config.Collector{RequestTimeout: 5 * time.Second})
	e, err := f.arch.CreateEnrollment(time.Hour, "test")
	if err != nil {
		t.Fatal(err)
	}
	f.connectAgent(t, "dev-1", e.Code)
	f.waitAgent(t, "dev-1", true)

	w := f.do(t, "GET", "/agents", "", nil)
	var agents []AgentInfo
	if err := json.Unmarshal(w.Body.Bytes(), &agents); err != nil || len(agents) != 1 || agents[0].DeviceID != "dev-1" {
		t.Fatalf("agents = %s", w.Body.String())
	}

	w = f.do(t, "GET", "/agents/dev-1/monitors/count", "", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), `"count":2`) {
		t.Fatalf("count: %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, "POST", "/agents/dev-1/monitors/0/capture", "", nil)
	if w.Code != 200 {
		t.Fatalf("capture: %d %s", w.Code, w.Body.String())
	}
	var rec archive.Capture
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Kind != "monitor" || rec.W != 64 || rec.H != 32 || rec.ThumbW != 8 {
		t.Fatalf("record = %+v", rec)
	}
	full, err := os.ReadFile(rec.Location)
	if err != nil || string(full) != "full-jpeg" {
		t.Fatalf("stored image = %q, %v", full, err)
	}

	w = f.do(t, "GET", "/captures/"+rec.ID+"/thumbnail", "", nil)
	if w.Code != 200 || w.Body.String() != "thumb-jpeg" || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("thumbnail: %d %q", w.Code, w.Body.String())
	}
	w = f.do(t, "GET", "/captures?device=dev-1", "", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), rec.ID) {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		method, path string
		want         int
	}{
		{"POST", "/agents/dev-1/monitors/3/capture", http.StatusNotFound},
		{"POST", "/agents/dev-1/monitors/x/capture", http.StatusBadRequest},
		{"POST", "/agents/dev-1/windows/5/capture", http.StatusNotFound},
		{"POST", "/agents/dev-1/windows/-5/capture", http.StatusBadRequest},
		{"GET", "/agents/dev-1/windows/active", http.StatusOK},
		{"GET", "/agents/dev-1/windows/focused", http.StatusNotImplemented},
		{"GET", "/agents/nobody/monitors/count", http.StatusNotFound},
		{"GET", "/captures/missing/thumbnail", http.StatusNotFound},
	}
	for _, tc := range tests {
		if w := f.do(t, tc.method, tc.path, "", nil); w.Code != tc.want {
			t.Errorf("%s %s = %d, want %d (%s)", tc.method, tc.path, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestAgentRejected(t *testing.T) {
	f := newFixture(t, config.Collector{})
	agentSide, collectorSide := net.Pipe()
	f.serve(collectorSide)

	a := agent.New(config.Agent{DeviceID: "dev-x", EnrollmentCode: "999"}, fakeQueries{}, zaptest.NewLogger(t))
	if err := a.Serve(context.Background(), agentSide); !errors.Is(err, agent.ErrRejected) {
		t.Fatalf("want ErrRejected, got %v", err)
	}
	if len(f.srv.agents.list()) != 0 {
		t.Fatal("rejected agent registered")
	}
}

func TestReconnectReplacesSession(t *testing.T) {
	f := newFixture(t, config.Collector{RequestTimeout: 5 * time.Second})
	e, err := f.arch.CreateEnrollment(time.Hour, "")
	if err != nil {
		t.Fatal(err)
	}
	first := f.connectAgent(t, "dev-1", e.Code)
	f.waitAgent(t, "dev-1", true)
	old, _ := f.srv.agents.get("dev-1")

	// 已绑定设备免码重连
	f.connectAgent(t, "dev-1", "")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if cur, ok := f.srv.agents.get("dev-1"); ok && cur != old {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session not replaced")
		}
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("old agent session not closed")
	}
	if n := len(f.srv.agents.list()); n != 1 {
		t.Fatalf("agents = %d", n)
	}
}

func TestCallTimeout(t *testing.T) {
	f := newFixture(t, config.Collector{RequestTimeout: 100 * time.Millisecond})
	e, err := f.arch.CreateEnrollment(time.Hour, "")
	if err != nil {
		t.Fatal(err)
	}
	agentSide, collectorSide := net.Pipe()
	defer agentSide.Close()
	f.serve(collectorSide)

	if err := protocol.WriteMessage(agentSide, protocol.AuthRequest{EnrollmentCode: e.Code, DeviceID: "mute"}); err != nil {
		t.Fatal(err)
	}
	var auth protocol.AuthResponse
	if err := protocol.ReadMessage(agentSide, &auth); err != nil || auth.Code != protocol.CodeOK {
		t.Fatalf("auth = %+v, %v", auth, err)
	}
	// 只读不回
	go func() {
		for {
			var req protocol.Request
			if protocol.ReadMessage(agentSide, &req) != nil {
				return
			}
		}
	}()
	f.waitAgent(t, "mute", true)

	if w := f.do(t, "GET", "/agents/mute/monitors/count", "", nil); w.Code != http.StatusGatewayTimeout {
		t.Fatalf("code = %d %s", w.Code, w.Body.String())
	}
	f.waitAgent(t, "mute", false)
}

func TestEnrollmentAdmin(t *testing.T) {
	closed := newFixture(t, config.Collector{})
	if w := closed.do(t, "GET", "/enrollments", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("admin disabled: %d", w.Code)
	}

	f := newFixture(t, config.Collector{AdminToken: "s3cret"})
	if w := f.do(t, "GET", "/enrollments", "wrong", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", w.Code)
	}
	if w := f.do(t, "POST", "/enrollments", "s3cret", []byte(`{"ttl":"-1h"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("bad ttl: %d", w.Code)
	}

	w := f.do(t, "POST", "/enrollments", "s3cret", []byte(`{"ttl":"2h","note":"lab pc"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var e archive.Enrollment
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil || e.Code == "" || e.Note != "lab pc" {
		t.Fatalf("enrollment = %+v, %v", e, err)
	}

	w = f.do(t, "GET", "/enrollments", "s3cret", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), e.Code) {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, "DELETE", "/enrollments/"+e.Code+"/binding", "s3cret", nil); w.Code != 200 {
		t.Fatalf("reset: %d", w.Code)
	}
	if w := f.do(t, "DELETE", "/enrollments/"+e.Code, "s3cret", nil); w.Code != 200 {
		t.Fatalf("revoke: %d", w.Code)
	}
	if w := f.do(t, "DELETE", "/enrollments/000", "s3cret", nil); w.Code != http.StatusNotFound {
		t.Fatalf("revoke unknown: %d", w.Code)
	}
}
