package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The watch endpoint serves internal dashboards.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleRunsWatch streams run and task transitions over a websocket.
// An optional ?tenderId= filter restricts the stream to one tender.
func (s *Server) handleRunsWatch(w http.ResponseWriter, r *http.Request) {
	tenderFilter := r.URL.Query().Get("tenderId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(sub)

	// Drain client frames so pings and close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if tenderFilter != "" && ev.TenderID != tenderFilter {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed, closing", "error", err)
				return
			}
		}
	}
}
