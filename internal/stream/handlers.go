package stream

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes exposes the live websocket. A cached snapshot, when
// present, is sent first so late joiners see the current state.
func RegisterRoutes(r fiber.Router, hub *Hub, snapshots *SnapshotCache) {
	r.Get("/ws/:sessionID", websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("sessionID")
		client := hub.Register(sessionID)
		defer hub.Unregister(client)

		if snapshot, err := snapshots.Load(context.Background(), sessionID); err == nil {
			if err := c.WriteMessage(websocket.TextMessage, snapshot); err != nil {
				return
			}
		}

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
