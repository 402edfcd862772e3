package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/models/entities"
)

// Conn is one bidirectional message channel. Read is only ever called from
// the session's serve loop.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	// Close performs a graceful close handshake.
	Close(reason string) error
	// CloseNow drops the channel without a handshake.
	CloseNow() error
}

// Session is one live connection with its own authentication state.
type Session struct {
	id   string
	conn Conn
	log  *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu       sync.Mutex
	identity *entities.Identity

	closeOnce sync.Once
}

func newSession(parent context.Context, id string, conn Conn) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:     id,
		conn:   conn,
		log:    logging.WithSession(id),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Identity returns the bound identity, nil until the handshake succeeds.
func (s *Session) Identity() *entities.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// bind sets the identity once. Later calls leave it unchanged and return false.
func (s *Session) bind(identity *entities.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity != nil {
		return false
	}
	s.identity = identity
	return true
}

// send writes env in order with other sends on this session. Closing the
// session cancels a send that is still blocked.
func (s *Session) send(env Envelope, timeout time.Duration) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return s.conn.Write(ctx, data)
}

// close tears down the transport once. graceful selects a close handshake
// over an immediate drop.
func (s *Session) close(graceful bool, reason string) {
	s.closeOnce.Do(func() {
		s.cancel()
		var err error
		if graceful {
			err = s.conn.Close(reason)
		} else {
			err = s.conn.CloseNow()
		}
		if err != nil {
			s.log.Debugw("Session transport close returned error", "reason", reason, "error", err)
		}
	})
}
