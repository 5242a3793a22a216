package ws

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// registers them with a Hub.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	client := &Client{hub: h.hub, conn: conn, send: make(chan []byte, 256)}
	h.hub.Register(client)

	go client.writePump()
	client.readPump()
}

// readPump drains client messages until the connection closes. Clients
// may send subscribe/unsubscribe envelopes, but every connected client
// receives every tariff's snapshots: such a message is only checked for a
// well-formed payload, and nothing is sent back for a valid one. Malformed
// envelopes or payloads and unknown types get an error reply.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError("malformed envelope")
			continue
		}

		switch env.Type {
		case TypeSubscribe, TypeUnsubscribe:
			var payload SubscribePayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				c.sendError("malformed subscribe payload")
				continue
			}
		default:
			c.sendError("unknown message type: " + env.Type)
		}
	}
}

func (c *Client) sendError(message string) {
	msg, err := NewEnvelope(TypeError, ErrorPayload{Message: message})
	if err != nil {
		log.Printf("ws: failed to marshal error payload: %v", err)
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("ws: client buffer full, dropping error message")
	}
}
