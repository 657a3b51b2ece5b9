package wsrelay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	readTimeout          = 60 * time.Second
	writeTimeout         = 10 * time.Second
	maxInboundMessageLen = 64 << 10 // 64 KiB
	heartbeatInterval    = 30 * time.Second
)

var errClosed = errors.New("websocket session closed")

type session struct {
	conn       *websocket.Conn
	manager    *Manager
	id         string
	closed     chan struct{}
	closeOnce  sync.Once
	writeMutex sync.Mutex
}

func newSession(conn *websocket.Conn, mgr *Manager, id string) *session {
	s := &session{
		conn:    conn,
		manager: mgr,
		id:      id,
		closed:  make(chan struct{}),
	}
	conn.SetReadLimit(maxInboundMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	s.startHeartbeat()
	return s
}

func (s *session) startHeartbeat() {
	if s == nil || s.conn == nil {
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.closed:
				return
			case <-ticker.C:
				s.writeMutex.Lock()
				err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
				s.writeMutex.Unlock()
				if err != nil {
					s.cleanup(err)
					return
				}
			}
		}
	}()
}

func (s *session) run() {
	defer s.cleanup(errClosed)
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.cleanup(err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.dispatch(msg)
	}
}

func (s *session) dispatch(msg Message) {
	switch msg.Type {
	case MessageTypePing:
		_ = s.send(Message{ID: msg.ID, Type: MessageTypePong})
	case MessageTypeCallback:
		completer := s.manager.getCompleter()
		if completer == nil {
			_ = s.send(Message{ID: msg.ID, Type: MessageTypeError, Payload: errorPayload("no authorization flow attached")})
			return
		}
		uri := gjson.GetBytes(msg.Payload, "uri").String()
		outcome := completer.Complete(uri)
		_ = s.send(Message{ID: msg.ID, Type: MessageTypeOutcome, Payload: outcomePayload(outcome)})
	case MessageTypeCancel:
		completer := s.manager.getCompleter()
		if completer == nil {
			_ = s.send(Message{ID: msg.ID, Type: MessageTypeError, Payload: errorPayload("no authorization flow attached")})
			return
		}
		_ = s.send(Message{ID: msg.ID, Type: MessageTypeOutcome, Payload: cancelPayload(completer.Cancel())})
	default:
		s.manager.logDebugf("wsrelay: ignoring message type %q from %s", msg.Type, s.id)
		_ = s.send(Message{ID: msg.ID, Type: MessageTypeError, Payload: errorPayload("unsupported message type " + msg.Type)})
	}
}

func (s *session) send(msg Message) error {
	select {
	case <-s.closed:
		return errClosed
	default:
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func (s *session) cleanup(cause error) {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		if s.manager != nil {
			s.manager.handleSessionClosed(s, cause)
		}
	})
}
