package serve

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is consumed by a local frontend; origin checks are handled
	// by the reverse proxy in deployments that need them.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSwapStreamV1 pushes status record updates over a websocket as the
// orchestrator publishes them, starting with the current record. The
// connection closes after a terminal status is delivered.
// GET /api/v1/swaps/{id}/ws
func (s *Server) handleSwapStreamV1(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "swap_id", id, "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.bus.Subscribe(id)
	defer cancel()

	// Reader goroutine drains control frames and signals client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	current := s.ledger.Read(id)
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(current); err != nil {
		return
	}
	if current.Status.Terminal() {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
			if rec.Status.Terminal() {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
