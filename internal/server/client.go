package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/stikjit/jitstub/internal/jit"
	"github.com/stikjit/jitstub/internal/version"
)

// FetchSnapshot requests one snapshot from the monitor at addr (host:port).
func FetchSnapshot(ctx context.Context, addr string) (jit.Snapshot, error) {
	var snap jit.Snapshot

	u := url.URL{Scheme: "http", Host: addr, Path: "/snapshot"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return snap, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, fmt.Errorf("failed to reach monitor at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("monitor at %s returned %s", addr, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// Watch subscribes to the monitor's websocket and calls fn for every
// snapshot until ctx is cancelled or the connection drops. A cancelled
// context is not reported as an error.
func Watch(ctx context.Context, addr string, fn func(jit.Snapshot)) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	header := http.Header{"User-Agent": []string{version.UserAgent()}}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", u.String(), err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer func() { _ = conn.Close() }()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("monitor stream ended: %w", err)
		}
		if msg.Type == MessageTypeSnapshot {
			fn(msg.Snapshot)
		}
	}
}
