package web

import (
	"context"
	"net/http"

	"nhooyr.io/websocket"
)

// wsConn adapts a websocket connection to the hub's Conn interface.
type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

// handleWS joins a client to its house channel:
// GET /ws?communityId=N&houseNumber=S. The subscription lives until the
// client disconnects; missed events are recovered by re-fetching pending
// state, not replayed.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	communityID, err := parseID(r.URL.Query().Get("communityId"))
	if err != nil {
		apiError(w, "invalid communityId", http.StatusBadRequest)
		return
	}
	houseNumber := r.URL.Query().Get("houseNumber")
	if houseNumber == "" {
		apiError(w, "houseNumber is required", http.StatusBadRequest)
		return
	}

	if _, err := s.deps.Communities.GetByID(communityID); err != nil {
		apiError(w, "community not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept already wrote the HTTP error.
		return
	}

	sub := s.deps.Hub.Join(communityID, houseNumber, wsConn{c: conn})
	defer sub.Leave()

	// The client only listens; CloseRead surfaces the disconnect.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
