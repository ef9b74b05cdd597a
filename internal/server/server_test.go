package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stikjit/jitstub/internal/jit"
	"github.com/stikjit/jitstub/internal/version"
)

// fakeSource is a mutable SnapshotSource.
type fakeSource struct {
	mu   sync.Mutex
	snap jit.Snapshot
}

func newFakeSource() *fakeSource {
	return &fakeSource{snap: jit.Snapshot{
		PID:       0x1f3,
		State:     jit.StateContinuing,
		UpdatedAt: time.Unix(1000, 0),
	}}
}

func (f *fakeSource) Snapshot() jit.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) mapRegion(addr, size uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Counters.ValidJitRequests++
	f.snap.Counters.TotalBytesMapped += size
	f.snap.Regions = append(f.snap.Regions, jit.Region{
		Address:  addr,
		Size:     size,
		Sequence: f.snap.Counters.ValidJitRequests,
	})
	f.snap.UpdatedAt = f.snap.UpdatedAt.Add(time.Second)
}

func newTestMonitor(t *testing.T, src SnapshotSource) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(Config{PushInterval: 10 * time.Millisecond}, src)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})
	return s, ts
}

func hostOf(ts *httptest.Server) string {
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestNew_RequiresSource(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	s, err := New(Config{}, newFakeSource())
	if err != nil {
		t.Fatal(err)
	}
	if s.config.PushInterval != DefaultPushInterval {
		t.Errorf("PushInterval = %v, want default", s.config.PushInterval)
	}
	if s.Addr() != nil || s.Port() != 0 {
		t.Error("unstarted server should have no address")
	}
}

func TestHTTPRoutes(t *testing.T) {
	src := newFakeSource()
	src.mapRegion(0x10000000, 0x4000)
	_, ts := newTestMonitor(t, src)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		check  func(t *testing.T, body []byte)
	}{
		{
			name: "snapshot", method: http.MethodGet, path: "/snapshot", status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var snap jit.Snapshot
				if err := json.Unmarshal(body, &snap); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if snap.PID != 0x1f3 || snap.State != jit.StateContinuing {
					t.Errorf("snapshot = %+v", snap)
				}
				if len(snap.Regions) != 1 || snap.Regions[0].Address != 0x10000000 {
					t.Errorf("regions = %+v", snap.Regions)
				}
			},
		},
		{
			name: "snapshot wrong method", method: http.MethodPost, path: "/snapshot", status: http.StatusMethodNotAllowed,
		},
		{
			name: "version", method: http.MethodGet, path: "/version", status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var info version.BuildInfo
				if err := json.Unmarshal(body, &info); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if info.Version != version.Version {
					t.Errorf("version = %q", info.Version)
				}
			},
		},
		{
			name: "health", method: http.MethodGet, path: "/healthz", status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				if !strings.Contains(string(body), `"ok"`) {
					t.Errorf("body = %s", body)
				}
			},
		},
		{
			name: "unknown", method: http.MethodGet, path: "/nope", status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.check != nil {
				body, err := io.ReadAll(resp.Body)
				if err != nil {
					t.Fatal(err)
				}
				tt.check(t, body)
			}
		})
	}
}

func TestFetchSnapshot(t *testing.T) {
	src := newFakeSource()
	_, ts := newTestMonitor(t, src)

	snap, err := FetchSnapshot(context.Background(), hostOf(ts))
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if snap.PID != 0x1f3 {
		t.Errorf("PID = %d", snap.PID)
	}

	if _, err := FetchSnapshot(context.Background(), "127.0.0.1:1"); err == nil {
		t.Error("expected error for unreachable monitor")
	}
}

func TestWatch_PushesOnChange(t *testing.T) {
	src := newFakeSource()
	_, ts := newTestMonitor(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan jit.Snapshot, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Watch(ctx, hostOf(ts), func(s jit.Snapshot) { got <- s })
	}()

	first := receive(t, got)
	if first.Counters.ValidJitRequests != 0 {
		t.Fatalf("first snapshot = %+v", first.Counters)
	}

	src.mapRegion(0x20000000, 0x10000)
	second := receive(t, got)
	if second.Counters.ValidJitRequests != 1 || second.Counters.TotalBytesMapped != 0x10000 {
		t.Fatalf("second snapshot = %+v", second.Counters)
	}

	// No change means no push
	select {
	case s := <-got:
		t.Fatalf("unexpected push without change: %+v", s.Counters)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Watch() after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_ShutdownClosesClients(t *testing.T) {
	src := newFakeSource()
	s, ts := newTestMonitor(t, src)

	got := make(chan jit.Snapshot, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Watch(context.Background(), hostOf(ts), func(s jit.Snapshot) { got <- s })
	}()
	receive(t, got)

	deadline := time.Now().Add(time.Second)
	for s.GetActiveConnections() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := s.GetActiveConnections(); n != 1 {
		t.Fatalf("active connections = %d, want 1", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Shutdown(ctx)

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after shutdown")
	}
	if n := s.GetActiveConnections(); n != 0 {
		t.Errorf("active connections after shutdown = %d", n)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s, err := New(Config{Listen: "127.0.0.1:0"}, newFakeSource())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Port() == 0 {
		t.Fatal("Port() should be set after Start")
	}

	snap, err := FetchSnapshot(context.Background(), s.Addr().String())
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if snap.PID != 0x1f3 {
		t.Errorf("PID = %d", snap.PID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if _, err := FetchSnapshot(context.Background(), s.Addr().String()); err == nil {
		t.Error("monitor should not answer after shutdown")
	}
}

func receive(t *testing.T, ch <-chan jit.Snapshot) jit.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return jit.Snapshot{}
	}
}
