package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// sessionEvents streams status snapshots to a WebSocket client until either
// side goes away.
func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Warn("websocket accept error", "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// Nothing is read from the client; CloseRead handles control frames and
	// cancels ctx when the client disconnects.
	ctx := conn.CloseRead(r.Context())

	updates, cancel := s.feed.Subscribe(16)
	defer cancel()

	s.logger.Info("status stream connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("status stream closed", "remote", r.RemoteAddr)
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, snap); err != nil {
				s.logger.Debug("status stream write error", "error", err)
				return
			}
		}
	}
}
