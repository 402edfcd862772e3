package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/logging"
)

// wsConn adapts a websocket connection to Conn.
type wsConn struct {
	c *websocket.Conn
}

var _ Conn = (*wsConn)(nil)

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Ping(ctx context.Context) error {
	return w.c.Ping(ctx)
}

func (w *wsConn) Close(reason string) error {
	return w.c.Close(websocket.StatusNormalClosure, reason)
}

func (w *wsConn) CloseNow() error {
	return w.c.CloseNow()
}

// Handler upgrades requests to websocket sessions and serves them until
// they close. Handshakes beyond the session limit get 503.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()
		if g.atCapacity() {
			logging.Warn("Rejecting websocket handshake at capacity", "remote_addr", r.RemoteAddr)
			common.RespondError(w, initTime, ErrCapacity, "Too many active sessions", http.StatusServiceUnavailable)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     g.cfg.OriginPatterns,
			InsecureSkipVerify: hasWildcard(g.cfg.OriginPatterns),
		})
		if err != nil {
			logging.Warn("Websocket handshake failed", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
		c.SetReadLimit(g.cfg.ReadLimit)

		s, err := g.Open(r.Context(), &wsConn{c: c})
		if err != nil {
			_ = c.Close(websocket.StatusTryAgainLater, err.Error())
			return
		}
		g.Serve(s)
	})
}

func (g *Gateway) atCapacity() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed || (g.cfg.MaxSessions > 0 && len(g.sessions) >= g.cfg.MaxSessions)
}

// OriginPatterns turns configured CORS origins ("https://app.example.com")
// into the host patterns the websocket handshake checks.
func OriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}

func hasWildcard(patterns []string) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
	}
	return false
}
