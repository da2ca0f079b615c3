package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:overlayID", websocket.New(func(c *websocket.Conn) {
		overlayID := c.Params("overlayID")
		client := hub.Register(overlayID)
		defer hub.Unregister(client)

		if hub.Current != nil {
			if payload := hub.Current(overlayID); payload != nil {
				_ = c.WriteMessage(websocket.TextMessage, payload)
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
		<-done
	}))
}
