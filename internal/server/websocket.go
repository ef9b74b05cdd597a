package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stikjit/jitstub/internal/jit"
	"github.com/stikjit/jitstub/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames and close
	maxMessageSize = 512
)

// MessageTypeSnapshot is the only message the monitor pushes.
const MessageTypeSnapshot = "snapshot"

// Message is the websocket envelope.
type Message struct {
	Type     string       `json:"type"`
	Snapshot jit.Snapshot `json:"snapshot"`
}

// handleWebSocket upgrades the request and pushes a snapshot immediately,
// then again whenever the session changes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := r.RemoteAddr
	s.track(remoteAddr, conn)
	s.wg.Add(1)
	logging.LogConnection(remoteAddr, "websocket_upgraded")

	defer func() {
		_ = conn.Close()
		s.untrack(remoteAddr)
		s.wg.Done()
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()

	closed := make(chan struct{})
	go s.readPump(conn, remoteAddr, closed)
	s.writePump(conn, remoteAddr, closed)
}

// readPump drains client frames so pongs and close frames are processed.
func (s *Server) readPump(conn *websocket.Conn, remoteAddr string, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("Connection closed or error reading frame",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, remoteAddr string, closed <-chan struct{}) {
	push := time.NewTicker(s.config.PushInterval)
	ping := time.NewTicker(pingPeriod)
	defer push.Stop()
	defer ping.Stop()

	var last time.Time
	send := func() bool {
		snap := s.source.Snapshot()
		if !last.IsZero() && snap.UpdatedAt.Equal(last) {
			return true
		}
		last = snap.UpdatedAt
		if err := s.sendSnapshot(conn, remoteAddr, snap); err != nil {
			s.logger.Info("Failed to push snapshot",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-push.C:
			if !send() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) sendSnapshot(conn *websocket.Conn, remoteAddr string, snap jit.Snapshot) error {
	data, err := json.Marshal(Message{Type: MessageTypeSnapshot, Snapshot: snap})
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	logging.LogWebSocketMessage(remoteAddr, "sent", websocket.TextMessage, data)
	return conn.WriteMessage(websocket.TextMessage, data)
}
