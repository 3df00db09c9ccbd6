package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"reelsmith/internal/logging"
)

const (
	eventsFetchLimit = 200
	eventsWriteWait  = 10 * time.Second
)

// upgrader is permissive on origin; the API is bound locally and protected by
// the bearer token when one is configured.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleEvents streams hub events to a websocket client. The optional `since`
// query resumes after a previously seen sequence number; each frame is one
// JSON-encoded event.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.comps.Hub
	if hub == nil {
		s.writeError(w, http.StatusConflict, "event stream is not available")
		return
	}

	since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure.
		s.log().Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close and ping control messages are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		batch, next, err := hub.Fetch(ctx, since, eventsFetchLimit, true)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				s.log().Warn("event fetch failed", logging.Error(err))
			}
			return
		}
		since = next
		for _, evt := range batch {
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
