package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/playsight/internal/app"
	"github.com/ayusman/playsight/internal/events"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler streams a game's events over a WebSocket. The game is
// named by the game query parameter; kinds is an optional comma separated
// filter and every other parameter is passed on as game configuration.
//
// A game has one stream at a time: a second connection for the same game
// replaces the first.
type EventsHandler struct {
	app    *app.App
	logger *zap.SugaredLogger
}

// NewEventsHandler creates a new EventsHandler for a.
func NewEventsHandler(a *app.App, logger *zap.SugaredLogger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventsHandler{app: a, logger: logger.Named("ws")}
}

// subscriptionParams splits the query into game, kinds and game config.
func subscriptionParams(r *http.Request) (string, []events.Kind, map[string]any) {
	q := r.URL.Query()
	game := q.Get("game")

	var kinds []events.Kind
	for k := range strings.SplitSeq(q.Get("kinds"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, events.Kind(k))
		}
	}

	cfg := make(map[string]any)
	for key, values := range q {
		if key == "game" || key == "kinds" || len(values) == 0 {
			continue
		}
		cfg[key] = values[0]
	}
	return game, kinds, cfg
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	game, kinds, cfg := subscriptionParams(r)
	sub := h.app.Subscribe(game, kinds, cfg)
	defer sub.Close()

	// Reading detects the client going away; incoming messages are ignored.
	go func() {
		defer sub.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	h.logger.Debugw("client connected", "game", game, "remote", r.RemoteAddr)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				h.logger.Debugw("stream finished", "game", game)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debugw("write failed", "game", game, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
