package presence

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Conn is the write side of a WebSocket connection. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewPacket encodes payload into a Packet of the given type.
func NewPacket(typ string, payload interface{}) (*Packet, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Packet{Type: typ, Payload: raw}, nil
}

// Session is one user's live chat connection. Writes go through SendChan to
// a single writer goroutine.
type Session struct {
	UserID  int64
	Conn    Conn
	TraceID string
	LastSeq uint64

	SendChan chan []byte
	Done     chan struct{}

	closeOnce sync.Once
	logger    *zap.Logger
}

// NewSession creates a Session and starts its write goroutine.
func NewSession(userID int64, conn Conn, logger *zap.Logger) *Session {
	s := &Session{
		UserID:   userID,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	go s.writePump(pingInterval)
	return s
}

// writePump drains SendChan and writes to the connection. It also pings
// periodically so dead peers are detected by the read deadline.
func (s *Session) writePump(ping time.Duration) {
	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and queues it without blocking. It reports whether the
// packet was queued; packets are dropped when the session is closed or its
// buffer is full.
func (s *Session) Send(pkt *Packet) bool {
	if s.IsClosed() {
		return false
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return false
	}
	return s.SendRaw(data)
}

// SendRaw queues pre-encoded bytes without blocking.
func (s *Session) SendRaw(data []byte) bool {
	select {
	case <-s.Done:
		return false
	default:
	}
	select {
	case s.SendChan <- data:
		return true
	default:
		s.logger.Warn("send channel full, dropping packet", zap.Int64("user_id", s.UserID))
		return false
	}
}

// Close signals the writePump to shut down.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}
