package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"backend-slopetrack/internal/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	channelPrefix  = "runs:"
	channelSuffix  = ":live"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Hub fans live payloads out to websocket clients of a session. With redis
// configured, payloads also reach clients connected to other instances.
type Hub struct {
	redis   *redis.Client
	origin  string
	log     logrus.FieldLogger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

type Client struct {
	SessionID string
	Send      chan []byte
}

type envelope struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client, log logrus.FieldLogger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		log:     logging.OrNop(log),
		clients: map[string]map[*Client]struct{}{},
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if redisClient != nil {
		pubsub := redisClient.PSubscribe(ctx, channelPattern)
		go h.subscribeRedis(ctx, pubsub)
	} else {
		close(h.done)
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		if _, registered := sessionClients[client]; !registered {
			return
		}
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
		close(client.Send)
	}
}

// Subscribers returns how many local clients watch sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Broadcast delivers payload to local clients and publishes it for other
// instances. Slow clients drop messages rather than block.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.deliver(sessionID, payload)

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(envelope{Origin: h.origin, Payload: payload})
	if err != nil {
		h.log.WithError(err).Warn("encode live payload")
		return
	}
	if err := h.redis.Publish(context.Background(), redisChannel(sessionID), msg).Err(); err != nil {
		h.log.WithError(err).WithField("session_id", sessionID).Warn("redis publish failed")
	}
}

func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer close(h.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.log.WithError(err).WithField("channel", msg.Channel).Debug("ignoring malformed live message")
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			h.deliver(sessionIDFromChannel(msg.Channel), env.Payload)
		}
	}
}

// Close stops the redis subscription.
func (h *Hub) Close() {
	h.cancel()
	<-h.done
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	if len(ch) <= len(channelPrefix)+len(channelSuffix) ||
		!strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
