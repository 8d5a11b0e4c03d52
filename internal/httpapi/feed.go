package httpapi

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agentworkforce/taskboard/internal/taskboard"
)

const feedWriteWindow = 5 * time.Second

// feedMessage is what the board feed pushes per refresh signal. It carries no
// diff; clients re-read the board on receipt.
type feedMessage struct {
	Type string `json:"type"`
	At   string `json:"at"`
}

// handleFeed upgrades the connection and forwards debounced refresh signals
// until the client goes away or the store closes.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	signals, cancel := s.store.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		case _, ok := <-signals:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "store closed")
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, feedWriteWindow)
			err := wsjson.Write(writeCtx, conn, feedMessage{
				Type: "board.refresh",
				At:   time.Now().UTC().Format(time.RFC3339Nano),
			})
			writeCancel()
			if err != nil {
				logfFeed(s.cfg.Logger, "feed write: %v", err)
				return
			}
		}
	}
}

func logfFeed(logger taskboard.Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
