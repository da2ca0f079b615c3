package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"backend-tripoverlay/internal/progress"

	"github.com/redis/go-redis/v9"
)

// Hub fans progress snapshots out to the overlay's websocket clients.
// With a Redis client it also bridges broadcasts across instances through
// pub/sub, so every render layer sees commits regardless of which instance
// processed the sample.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	// Current, when set, supplies the payload sent to a client right after
	// it registers so the overlay renders without waiting for the next fix.
	Current func(overlayID string) []byte
}

type Client struct {
	OverlayID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(overlayID string) *Client {
	client := &Client{
		OverlayID: overlayID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[overlayID] == nil {
		h.clients[overlayID] = map[*Client]struct{}{}
	}
	h.clients[overlayID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if overlayClients, ok := h.clients[client.OverlayID]; ok {
		delete(overlayClients, client)
		if len(overlayClients) == 0 {
			delete(h.clients, client.OverlayID)
		}
	}
	close(client.Send)
}

// Broadcast delivers a payload to every client of the overlay. With Redis
// wired, delivery goes through pub/sub only: the hub receives its own publish
// alongside the other instances', so clients get exactly one copy. Without
// Redis (or when the publish fails) delivery is direct.
func (h *Hub) Broadcast(overlayID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(overlayID), payload).Err()
		if err == nil {
			return
		}
		log.Printf("redis publish error: %v", err)
	}
	h.deliverLocal(overlayID, payload)
}

func (h *Hub) deliverLocal(overlayID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[overlayID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "overlay:*:progress")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliverLocal(overlayIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func redisChannel(overlayID string) string {
	return "overlay:" + overlayID + ":progress"
}

func overlayIDFromChannel(ch string) string {
	// overlay:{id}:progress
	const prefix = "overlay:"
	const suffix = ":progress"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}

// ProgressPublisher adapts the hub to the engine's Publisher interface for a
// fixed overlay id.
type ProgressPublisher struct {
	hub       *Hub
	overlayID string
}

func NewProgressPublisher(hub *Hub, overlayID string) *ProgressPublisher {
	return &ProgressPublisher{hub: hub, overlayID: overlayID}
}

func (p *ProgressPublisher) PublishProgress(snap progress.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("snapshot marshal error: %v", err)
		return
	}
	p.hub.Broadcast(p.overlayID, payload)
}
