package realtime

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"karaoke-service/internal/auth"
	"karaoke-service/internal/logging"
)

type Server struct {
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
}

// NewServer builds the upgrade handler. An empty origin list, or one that
// contains "*", accepts any origin.
func NewServer(hub *Hub, dispatcher *Dispatcher, allowedOrigins []string) *Server {
	return &Server{
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// HandleWS upgrades the request. The link token is captured here, once, and
// every gated call on the connection is checked against it.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("realtime: upgrade failed")
		return
	}

	c := newClient(s.hub, s.dispatcher, conn, token)
	if err := s.hub.Register(c); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"))
		_ = conn.Close()
		return
	}

	if hello, err := welcomeFrame(c.id); err == nil {
		s.hub.sendTo(c, hello)
	}

	logging.Debug().Uint64("client_id", c.id).Bool("has_token", token != "").Msg("realtime: client connected")
	c.start()
}
