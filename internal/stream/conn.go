package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// safeConn serializes writes to a websocket connection. gorilla allows one
// concurrent writer; the pump and Close may both write.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSafeConn(conn *websocket.Conn) *safeConn {
	return &safeConn{conn: conn}
}

func (s *safeConn) WriteMessage(messageType int, data []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return s.conn.WriteMessage(messageType, data)
}

// CloseWithCode sends a close frame and closes the connection.
func (s *safeConn) CloseWithCode(code int, text string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(timeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	return s.conn.Close()
}

func (s *safeConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *safeConn) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}
