package pushhub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mondominator/opsdec/internal/cryptokit"
	"github.com/mondominator/opsdec/internal/logging"
)

// Close codes for auth failures during the upgrade handshake, per the
// external websocket surface's token contract.
const (
	CloseMissingToken = 4001
	CloseInvalidToken = 4003
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(*http.Request) bool { return true },
}

// ServeHTTP upgrades a request to a websocket connection, gating it on the
// ?token= query parameter instead of the Authorization header or cookie the
// rest of the API uses, since browsers cannot set request headers on the
// WebSocket handshake.
func ServeHTTP(hub *Hub, tokens *cryptokit.TokenManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			closeWithCode(conn, CloseMissingToken, "missing token")
			return
		}

		if _, err := tokens.Verify(token); err != nil {
			conn, upErr := upgrader.Upgrade(w, r, nil)
			if upErr != nil {
				return
			}
			closeWithCode(conn, CloseInvalidToken, "invalid token")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error().Err(err).Msg("pushhub: websocket upgrade failed")
			return
		}

		client := NewClient(hub, conn)
		client.Start()
	}
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
