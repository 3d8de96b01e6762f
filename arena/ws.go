package arena

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/TamimC/VibeGameSpace/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Handler upgrades requests to websocket connections and runs the per-client
// read loop until the peer goes away.
func Handler(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		id := hub.Register(conn)
		defer hub.Disconnect(id)
		readLoop(hub, conn, id, logger)
	}
}

// readLoop decodes inbound frames and dispatches them to the hub. Unknown
// message types are dropped; a malformed frame or closed socket ends the
// session.
func readLoop(hub *Hub, conn *websocket.Conn, id string, logger *slog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read failed", "id", id, "error", err)
			}
			return
		}
		msg, err := protocol.DecodeClient(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				logger.Debug("dropping unknown message", "id", id, "error", err)
				continue
			}
			logger.Warn("malformed message", "id", id, "error", err)
			continue
		}
		switch m := msg.(type) {
		case *protocol.RequestPlayers:
			hub.HandleRequestPlayers(id, m)
		case *protocol.Update:
			hub.HandleUpdate(id, m)
		case *protocol.PlayerDamage:
			hub.HandlePlayerDamage(id, m)
		case *protocol.PlayerDied:
			hub.HandlePlayerDied(id, m)
		}
	}
}
