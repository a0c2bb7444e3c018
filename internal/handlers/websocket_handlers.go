package handlers

import (
	"context"
	"net/http"
	"net/url"

	"kick-haven/internal/logging"

	ws "github.com/gorilla/websocket"
)

// checkOrigin accepts same-host requests and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// HandleWebSocket upgrades an authenticated request and attaches it to the
// hub. The token comes from the Authorization header or the token query
// parameter.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := caller(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			logging.Debug().Err(err).Str("user", id.ID.String()).Msg("websocket upgrade failed")
			return
		}

		// The request context ends with this handler; registration must not.
		if !s.Hub.Attach(context.WithoutCancel(r.Context()), id.ID, conn) {
			logging.Warn().Str("user", id.ID.String()).Msg("websocket hub is not running")
		}
	}
}
