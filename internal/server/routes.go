package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ernestchu/christmas-tree/internal/config"
	"github.com/ernestchu/christmas-tree/internal/gateway"
	"github.com/ernestchu/christmas-tree/internal/metrics"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// NewRouter wires the websocket gateway and the small HTTP surface around it.
func NewRouter(hub *gateway.Hub, cfg config.Server, log zerolog.Logger) *mux.Router {
	log = log.With().Str("mod", "http").Logger()

	router := mux.NewRouter()
	router.HandleFunc("/ws", ServeWs(hub, cfg, log))
	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions", listSessions(hub, log)).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/new", newSession(hub, log)).Methods(http.MethodGet)
	if !cfg.Metrics.Disabled {
		router.Handle(cfg.Metrics.Path, metrics.Handler()).Methods(http.MethodGet)
	}
	return router
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Coordination server is healthy."))
}

// ServeWs returns an http.HandlerFunc that upgrades the request and hands
// the connection to the hub.
func ServeWs(hub *gateway.Hub, cfg config.Server, log zerolog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.Websocket.ReadBufferSize,
		WriteBufferSize: cfg.Websocket.WriteBufferSize,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("failed to upgrade connection")
			return
		}

		client := gateway.NewClient(hub, conn)
		hub.Register(client)
		log.Debug().Str("client", client.ID).Str("remote", r.RemoteAddr).Msg("connection upgraded")

		go client.WritePump()
		go client.ReadPump()
	}
}

// originChecker allows everything when no origins are configured. Requests
// without an Origin header come from non-browser clients and are allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

func listSessions(hub *gateway.Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out []protocol.SessionSummary
		err := hub.Inspect(r.Context(), func(reg *session.Registry) {
			out = make([]protocol.SessionSummary, 0, reg.Len())
			for _, s := range reg.Sessions() {
				out = append(out, protocol.SessionSummary{
					ID:           s.ID,
					Users:        s.WireUsers(),
					ControllerID: protocol.NullableID(s.Controller()),
					CreatedAt:    s.CreatedAt,
				})
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("list sessions")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, log, out)
	}
}

func newSession(hub *gateway.Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id string
		err := hub.Inspect(r.Context(), func(reg *session.Registry) {
			id = reg.NewSessionID()
		})
		if err != nil {
			log.Warn().Err(err).Msg("new session id")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, log, protocol.NewSession{SessionID: id})
	}
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
