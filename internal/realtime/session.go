package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 50 * time.Second
	sendBufferSize = 16
)

// Frame is the wire format for outbound websocket events.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WSSession adapts a websocket connection to the hub's Session interface.
// Sends go through a buffered channel drained by a single writer goroutine,
// since gorilla connections allow only one concurrent writer.
type WSSession struct {
	conn      *websocket.Conn
	out       chan Frame
	closed    chan struct{}
	closeOnce sync.Once
}

// NewWSSession wraps an upgraded websocket connection and starts its writer.
func NewWSSession(conn *websocket.Conn) *WSSession {
	s := &WSSession{
		conn:   conn,
		out:    make(chan Frame, sendBufferSize),
		closed: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Send queues an event for delivery. A full buffer or a closed session
// counts as a delivery failure, which makes the hub drop this session.
func (s *WSSession) Send(event string, payload any) error {
	frame := Frame{Event: event, Data: payload}
	select {
	case <-s.closed:
		return errors.New("session closed")
	case s.out <- frame:
		return nil
	default:
		return errors.New("session send buffer full")
	}
}

// ReadLoop consumes inbound frames until the peer disconnects. Clients don't
// send anything meaningful over the socket; the loop exists to process
// control frames and detect the close.
func (s *WSSession) ReadLoop() {
	defer s.Close()

	s.conn.SetReadLimit(1 << 10)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close tears the session down; safe to call more than once.
func (s *WSSession) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

func (s *WSSession) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.out:
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
