package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/services"
)

var (
	// ErrCapacity is returned by Open when the session limit is reached.
	ErrCapacity = errors.New("gateway at capacity")
	// ErrClosed is returned by Open after Shutdown.
	ErrClosed = errors.New("gateway closed")
	// ErrUnknownSession is returned by Send for an id that is not registered.
	ErrUnknownSession = errors.New("unknown session")
)

type Config struct {
	MaxSessions  int
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	// OriginPatterns are host patterns accepted on the websocket handshake.
	OriginPatterns []string
}

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 16 << 10
)

// Gateway owns the session registry. Every registry read-modify-write
// happens under mu; delivery to sessions always happens outside it.
type Gateway struct {
	validator services.Validator
	responder services.Responder
	metrics   *metrics.MetricsRegistry
	cfg       Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func New(validator services.Validator, responder services.Responder, m *metrics.MetricsRegistry, cfg Config) *Gateway {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	return &Gateway{
		validator: validator,
		responder: responder,
		metrics:   m,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
	}
}

// Open registers conn as a new unauthenticated session.
func (g *Gateway) Open(ctx context.Context, conn Conn) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}
	if g.cfg.MaxSessions > 0 && len(g.sessions) >= g.cfg.MaxSessions {
		return nil, ErrCapacity
	}

	id := uuid.NewString()
	for _, taken := g.sessions[id]; taken; _, taken = g.sessions[id] {
		id = uuid.NewString()
	}

	s := newSession(ctx, id, conn)
	g.sessions[id] = s
	if g.metrics != nil {
		g.metrics.SessionsActive.Inc()
	}
	s.log.Infow("Session opened", "active_sessions", len(g.sessions))
	return s, nil
}

// Serve reads and dispatches frames until the channel fails or the session
// is closed, then removes the session.
func (g *Gateway) Serve(s *Session) {
	defer g.Close(s.id)

	if g.cfg.PingInterval > 0 {
		go g.keepAlive(s)
	}

	for {
		data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.log.Debugw("Session read ended", "error", err)
			}
			return
		}
		g.receive(s, data)
	}
}

// receive handles one inbound frame. Protocol errors are answered on the
// session and never close it.
func (g *Gateway) receive(s *Session, data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		g.countMessage("malformed")
		g.reply(s, errorEnvelope(constants.WSMsgInvalidFormat))
		return
	}

	switch env.Type {
	case constants.EnvelopeAuth:
		g.countMessage(env.Type)
		g.handleAuth(s, env)
	case constants.EnvelopeChatMessage:
		g.countMessage(env.Type)
		g.handleChat(s, env)
	default:
		g.countMessage("unknown")
		s.log.Debugw("Ignoring unknown envelope type", "type", env.Type)
	}
}

func (g *Gateway) handleAuth(s *Session, env Envelope) {
	var p authPayload
	if err := decodePayload(env, &p); err != nil {
		g.reply(s, errorEnvelope(constants.WSMsgInvalidFormat))
		return
	}
	if s.Identity() != nil {
		g.reply(s, mustEnvelope(constants.EnvelopeAuthFailed, errorPayload{Error: constants.WSMsgAlreadyAuthed}))
		return
	}

	identity, err := g.validator.Validate(s.ctx, p.Token)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredential) {
			s.log.Infow("Session authentication rejected")
			g.reply(s, mustEnvelope(constants.EnvelopeAuthFailed, errorPayload{Error: constants.WSMsgInvalidToken}))
			return
		}
		s.log.Errorw("Session authentication failed on store error", "error", err)
		g.reply(s, errorEnvelope(constants.WSMsgAuthUnavailable))
		return
	}

	if !s.bind(identity) {
		g.reply(s, mustEnvelope(constants.EnvelopeAuthFailed, errorPayload{Error: constants.WSMsgAlreadyAuthed}))
		return
	}
	s.log.Infow("Session authenticated", "membership_code", common.MaskCredential(identity.MembershipCode))
	g.reply(s, mustEnvelope(constants.EnvelopeAuthSuccess, authSuccessPayload{UserName: identity.UserName}))
}

func (g *Gateway) handleChat(s *Session, env Envelope) {
	identity := s.Identity()
	if identity == nil {
		g.reply(s, errorEnvelope(constants.WSMsgAuthRequired))
		return
	}

	var p chatMessagePayload
	if err := decodePayload(env, &p); err != nil {
		g.reply(s, errorEnvelope(constants.WSMsgInvalidFormat))
		return
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		g.reply(s, errorEnvelope(constants.WSMsgContentRequired))
		return
	}

	text, err := g.responder.Generate(s.ctx, content, identity)
	if err != nil {
		s.log.Errorw("Chat responder failed", "error", err)
		g.reply(s, errorEnvelope(constants.WSMsgProcessingFailed))
		return
	}
	g.reply(s, mustEnvelope(constants.EnvelopeChatResponse, chatResponsePayload{Content: text}))
}

// reply sends to the originating session. A failed write means the channel
// is dead, so the session goes.
func (g *Gateway) reply(s *Session, env Envelope) {
	if err := s.send(env, g.cfg.WriteTimeout); err != nil {
		g.drop(s, err)
	}
}

// Send delivers env to one session by id.
func (g *Gateway) Send(id string, env Envelope) error {
	g.mu.Lock()
	s, ok := g.sessions[id]
	g.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	if err := s.send(env, g.cfg.WriteTimeout); err != nil {
		g.drop(s, err)
		return err
	}
	return nil
}

// Broadcast delivers env to every session except exclude, working from a
// snapshot of the registry. Sessions whose delivery fails are torn down and
// delivery continues with the rest. It returns how many sessions received it.
// Intended for server-wide notices such as admin announcements; chat replies
// go through the per-session path instead.
func (g *Gateway) Broadcast(ctx context.Context, env Envelope, exclude string) int {
	g.mu.Lock()
	targets := make([]*Session, 0, len(g.sessions))
	for id, s := range g.sessions {
		if id != exclude {
			targets = append(targets, s)
		}
	}
	g.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if ctx.Err() != nil {
			break
		}
		if err := s.send(env, g.cfg.WriteTimeout); err != nil {
			g.drop(s, err)
			continue
		}
		delivered++
	}
	return delivered
}

// Close removes a session and closes its channel. Unknown ids are a no-op.
func (g *Gateway) Close(id string) {
	if s := g.remove(id); s != nil {
		s.close(true, "session closed")
	}
}

// Count returns the number of registered sessions.
func (g *Gateway) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Shutdown stops accepting sessions and closes every open one.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.mu.Lock()
	g.closed = true
	all := make([]*Session, 0, len(g.sessions))
	for id, s := range g.sessions {
		all = append(all, s)
		delete(g.sessions, id)
	}
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.SessionsActive.Sub(float64(len(all)))
	}

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.close(true, "server shutting down")
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn("Gateway shutdown timed out waiting for sessions to close")
	}
	logging.Info("Gateway shut down", "closed_sessions", len(all))
}

// drop tears a session down after a transport failure.
func (g *Gateway) drop(s *Session, cause error) {
	if g.metrics != nil {
		g.metrics.GatewaySendFailures.Inc()
	}
	if g.remove(s.id) != nil {
		s.log.Warnw("Session dropped after failed delivery", "error", cause)
	}
	s.close(false, "delivery failed")
}

func (g *Gateway) remove(id string) *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil
	}
	delete(g.sessions, id)
	if g.metrics != nil {
		g.metrics.SessionsActive.Dec()
	}
	s.log.Infow("Session closed", "active_sessions", len(g.sessions))
	return s
}

func (g *Gateway) keepAlive(s *Session) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, g.cfg.PingInterval)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				if s.ctx.Err() == nil {
					s.log.Infow("Session failed liveness probe", "error", err)
				}
				g.remove(s.id)
				s.close(false, "liveness probe failed")
				return
			}
		}
	}
}

func (g *Gateway) countMessage(typ string) {
	if g.metrics != nil {
		g.metrics.GatewayMessagesTotal.WithLabelValues(typ).Inc()
	}
}

func errorEnvelope(msg string) Envelope {
	return mustEnvelope(constants.EnvelopeError, errorPayload{Error: msg})
}
