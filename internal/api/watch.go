package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pokeguess/duel/internal/domain"
)

const writeWait = 10 * time.Second

// watchMatch upgrades to a websocket and streams one JSON frame per record
// version, starting with the current one. A null frame means the record was
// deleted and the stream is over.
func (a *API) watchMatch(c *gin.Context) {
	id := c.Param("id")

	snapshot, err := a.ms.GetMatch(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	updates, unsubscribe := a.ms.Watch(ctx, id)
	defer unsubscribe()

	// Read loop exists only to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(conn, snapshot); err != nil {
		return
	}

	for {
		select {
		case m, ok := <-updates:
			if !ok {
				return
			}
			if err := writeFrame(conn, m); err != nil {
				return
			}
			if m == nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, m *domain.Match) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}
