package mockgateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/socketmode/internal/envelope"
)

// ErrTimeout is returned by the Wait helpers.
var ErrTimeout = errors.New("timed out")

const writeTimeout = 5 * time.Second

// Session is one accepted client socket.
type Session struct {
	ID              string
	Index           int  // Order of acceptance, starting at 0
	DebugReconnects bool // Client asked for frequent rotation

	g    *Gateway
	conn *websocket.Conn

	writeMu sync.Mutex

	acks   chan envelope.Ack
	frames chan []byte

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func newSession(g *Gateway, conn *websocket.Conn, index int, debugReconnects bool) *Session {
	return &Session{
		ID:              uuid.NewString(),
		Index:           index,
		DebugReconnects: debugReconnects,
		g:               g,
		conn:            conn,
		acks:            make(chan envelope.Ack, 256),
		frames:          make(chan []byte, 256),
		done:            make(chan struct{}),
	}
}

func (s *Session) readLoop() {
	defer s.markClosed()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		if ack, ok := s.g.record(s, data); ok {
			select {
			case s.acks <- ack:
			default:
			}
			continue
		}

		select {
		case s.frames <- data:
		default:
		}
		if s.g.cfg.Echo {
			if err := s.Send(data); err != nil {
				s.g.logger.Debug("echo failed", "session", s.ID, "error", err)
			}
		}
	}
}

func (s *Session) pingLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.Ping(); err != nil {
				return
			}
		}
	}
}

// Send writes one text frame.
func (s *Session) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// SendEnvelope encodes and writes env.
func (s *Session) SendEnvelope(env *envelope.Envelope) error {
	data, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// SendRequest pushes a request envelope with a fresh envelope id and
// returns the id.
func (s *Session) SendRequest(envType string, payload any, acceptsResponse bool) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	id := uuid.NewString()
	err = s.SendEnvelope(&envelope.Envelope{
		Type:                   envType,
		EnvelopeID:             id,
		Payload:                raw,
		AcceptsResponsePayload: acceptsResponse,
	})
	return id, err
}

// Disconnect announces that the gateway is about to drop the socket.
func (s *Session) Disconnect(reason string) error {
	return s.SendEnvelope(&envelope.Envelope{
		Type:      envelope.TypeDisconnect,
		Reason:    reason,
		DebugInfo: &envelope.DebugInfo{Host: "mockgateway"},
	})
}

// Ping sends a WebSocket ping.
func (s *Session) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
}

// WaitAck returns the next ack received on this session.
func (s *Session) WaitAck(timeout time.Duration) (envelope.Ack, error) {
	select {
	case ack := <-s.acks:
		return ack, nil
	case <-time.After(timeout):
		return envelope.Ack{}, ErrTimeout
	}
}

// WaitFrame returns the next non-ack frame received on this session.
func (s *Session) WaitFrame(timeout time.Duration) ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// Close sends a normal close frame and closes the socket.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		s.conn.Close()
	})
	s.markClosed()
}

// Drop closes the socket without a close frame.
func (s *Session) Drop() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
	s.markClosed()
}

// Done is closed when the socket is gone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) markClosed() {
	s.doneOnce.Do(func() { close(s.done) })
}
