package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	outboundCapacity = 64
)

// socket wraps a websocket connection with a single writer goroutine so
// sends from the read loop, the fanout worker, and the hub never interleave
// frames. Send order is delivery order.
type socket struct {
	ws   *websocket.Conn
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func newSocket(ws *websocket.Conn) *socket {
	s := &socket{
		ws:   ws,
		out:  make(chan []byte, outboundCapacity),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s
}

func (s *socket) writePump() {
	for {
		select {
		case msg := <-s.out:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send marshals v and enqueues it on the write pump. Blocks only when the
// outbound buffer is full; returns once the socket is closed.
func (s *socket) Send(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal outbound event", "error", err)
		return
	}
	select {
	case s.out <- payload:
	case <-s.done:
	}
}

// CloseWithCode sends a close frame with the given status code and then
// closes the connection. Control frames are safe to write concurrently with
// the write pump.
func (s *socket) CloseWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	s.Close()
}

func (s *socket) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}

func (s *socket) Done() <-chan struct{} {
	return s.done
}
