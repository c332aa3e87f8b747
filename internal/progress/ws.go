package progress

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stocklab/internal/domain"
)

const wsWriteTimeout = 10 * time.Second

// WSSink broadcasts progress updates to WebSocket subscribers. It doubles
// as the http.Handler that upgrades incoming connections. Slow or dead
// connections are dropped; the simulation never waits on a subscriber.
type WSSink struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

// NewWSSink creates a WSSink.
func NewWSSink(logger *zap.Logger) *WSSink {
	return &WSSink{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP upgrades the connection and registers it for broadcasts.
func (s *WSSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	send := make(chan []byte, 16)
	s.mu.Lock()
	s.conns[conn] = send
	s.mu.Unlock()

	go s.writePump(conn, send)
	go s.readPump(conn)
}

// Publish implements Sink. Marshals once and fans out; a subscriber with a
// full buffer misses this update.
func (s *WSSink) Publish(u domain.ProgressUpdate) {
	payload, err := json.Marshal(u)
	if err != nil {
		s.logger.Warn("marshal progress update", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, send := range s.conns {
		select {
		case send <- payload:
		default:
		}
	}
}

// Close disconnects every subscriber.
func (s *WSSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, send := range s.conns {
		close(send)
		conn.Close()
		delete(s.conns, conn)
	}
}

func (s *WSSink) writePump(conn *websocket.Conn, send chan []byte) {
	for payload := range send {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.drop(conn)
			return
		}
	}
}

// readPump drains control frames and detects disconnects. Subscribers are
// broadcast-only; inbound data frames are discarded.
func (s *WSSink) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.drop(conn)
			return
		}
	}
}

func (s *WSSink) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if send, ok := s.conns[conn]; ok {
		close(send)
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	conn.Close()
}

var _ Sink = (*WSSink)(nil)
