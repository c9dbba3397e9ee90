package websocket

import (
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
)

// Handle upgrades the connection and runs it as a hub client. The
// group_id query parameter scopes which broadcasts the client receives.
func Handle(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := strconv.ParseInt(r.URL.Query().Get("group_id"), 10, 64)
		if err != nil || groupID <= 0 {
			http.Error(w, "invalid group_id", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // household LAN, any origin
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn)
		client.Run(r.Context(), groupID)
	}
}
