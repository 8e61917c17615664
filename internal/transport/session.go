package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"planetarena/server/internal/input"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
)

const writeWait = 5 * time.Second

// session is one connected websocket. The read pump owns prev; everything else
// is safe for concurrent use.
type session struct {
	id       string
	encoding networking.Encoding
	conn     *websocket.Conn
	send     chan networking.Frame
	done     chan struct{}
	once     sync.Once
	logger   *logging.Logger

	prev input.Command
}

func newSession(id string, encoding networking.Encoding, conn *websocket.Conn, queue int, logger *logging.Logger) *session {
	return &session{
		id:       id,
		encoding: encoding,
		conn:     conn,
		send:     make(chan networking.Frame, queue),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// ID implements networking.Subscriber.
func (s *session) ID() string { return s.id }

// Encoding implements networking.Subscriber.
func (s *session) Encoding() networking.Encoding { return s.encoding }

// Enqueue implements networking.Subscriber; it drops instead of blocking.
func (s *session) Enqueue(frame networking.Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the write pump and the socket. Safe to call repeatedly.
func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// closeWith sends a close frame before tearing the session down.
func (s *session) closeWith(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	s.close()
}

func (s *session) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			messageType := websocket.TextMessage
			if frame.Binary {
				messageType = websocket.BinaryMessage
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(messageType, frame.Payload); err != nil {
				s.logger.Debug("write failed", logging.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug("ping failed", logging.Error(err))
				return
			}
		}
	}
}
