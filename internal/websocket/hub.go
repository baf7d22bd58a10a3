package chatws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/delivery"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/models"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/presence"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/services"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/shardmap"
)

// Outbound event names, kept compatible with the web client.
const (
	EventNewMessage   = "newMessage"
	EventMessagesSeen = "messagesSeen"
	EventOnlineUsers  = "getOnlineUsers"

	eventMarkSeen = "markMessagesAsSeen"
	eventError    = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SeenPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
}

type seenAcker interface {
	MarkConversationSeen(ctx context.Context, userID, conversationID string) (*services.SeenReceipt, error)
}

// Hub is the boundary between the transport and the messaging core. It owns
// the live clients, keeps the presence registry in step with connect and
// disconnect events, and runs every outbound push through the delivery
// deduplicator.
type Hub struct {
	presence *presence.Registry
	dedup    *delivery.Deduplicator
	clients  *shardmap.Map[*Client]
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	connID string
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func NewHub(registry *presence.Registry, dedup *delivery.Deduplicator) *Hub {
	return &Hub{
		presence: registry,
		dedup:    dedup,
		clients:  shardmap.New[*Client](),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		connID: uuid.NewString(),
		send:   make(chan []byte, 32),
	}
}

func (c *Client) UserID() string { return c.userID }
func (c *Client) ConnID() string { return c.connID }

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Connect registers the client as its user's live connection. If the user
// already had one, that connection is closed before the new one takes over,
// then the updated online-user set goes out to everyone.
func (h *Hub) Connect(client *Client) {
	h.clients.Set(client.connID, client)
	if evictedConnID, evicted := h.presence.Register(client.userID, client.connID); evicted {
		if old, ok := h.clients.Get(evictedConnID); ok {
			log.Printf("chat hub: user %s reconnected, closing connection %s", client.userID, evictedConnID)
			h.clients.Delete(evictedConnID)
			old.close()
		}
	}
	h.broadcastOnlineUsers()
}

// Disconnect drops the client. The online-user set is rebroadcast only when
// the client was still its user's current connection; a disconnect of an
// already-superseded connection changes nothing.
func (h *Hub) Disconnect(client *Client) {
	_, removed := h.presence.Unregister(client.connID)
	h.clients.Delete(client.connID)
	client.close()
	if removed {
		h.broadcastOnlineUsers()
	}
}

// DeliverMessage pushes a freshly persisted message to its recipient, if
// connected. Reports whether a push went out; an offline recipient or a
// duplicate of an already-pushed message yields false. The dedup record
// stands only for pushes that reached the client's queue, so a failed
// enqueue stays retriable.
func (h *Hub) DeliverMessage(recipientID string, message *models.MessageView) bool {
	connID, ok := h.presence.Lookup(recipientID)
	if !ok {
		log.Printf("chat hub: recipient %s offline, message %s stays store-only", recipientID, message.ID)
		return false
	}
	if !h.dedup.ShouldDeliver(message.ID) {
		log.Printf("chat hub: suppressing duplicate push of message %s", message.ID)
		return false
	}
	if !h.sendTo(connID, EventNewMessage, message) {
		h.dedup.Forget(message.ID)
		log.Printf("chat hub: connection %s undeliverable, message %s stays store-only", connID, message.ID)
		return false
	}
	return true
}

// NotifyMessagesSeen tells userID that seenBy has read their messages in
// the conversation. Callers only invoke this when a seen transition
// actually modified something.
func (h *Hub) NotifyMessagesSeen(userID, conversationID, seenBy string) {
	connID, ok := h.presence.Lookup(userID)
	if !ok {
		return
	}
	h.sendTo(connID, EventMessagesSeen, SeenPayload{ConversationID: conversationID, UserID: seenBy})
}

func (h *Hub) broadcastOnlineUsers() {
	payload, err := encodeEvent(EventOnlineUsers, h.presence.OnlineUsers())
	if err != nil {
		log.Printf("chat hub encode online users: %v", err)
		return
	}
	h.clients.Range(func(_ string, client *Client) bool {
		client.trySend(payload)
		return true
	})
}

func (h *Hub) sendTo(connID string, event string, data any) bool {
	client, ok := h.clients.Get(connID)
	if !ok {
		return false
	}
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("chat hub encode %s: %v", event, err)
		return false
	}
	if !client.trySend(payload) {
		h.Disconnect(client)
		return false
	}
	return true
}

// trySend enqueues without blocking; a closed client or a full buffer means
// the client stopped draining and is reported as undeliverable.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func (c *Client) ReadPump(service seenAcker) {
	defer func() {
		c.hub.Disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming Envelope
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.writeError("invalid event payload")
			continue
		}

		switch incoming.Event {
		case eventMarkSeen:
			var seen SeenPayload
			if err := json.Unmarshal(incoming.Data, &seen); err != nil || seen.ConversationID == "" {
				c.writeError("invalid seen payload")
				continue
			}
			receipt, err := service.MarkConversationSeen(context.Background(), c.userID, seen.ConversationID)
			if err != nil {
				c.writeError("failed to mark messages as seen")
				continue
			}
			if receipt.Modified > 0 {
				c.hub.NotifyMessagesSeen(receipt.NotifyUserID, receipt.ConversationID, c.userID)
			}
		default:
			c.writeError("unsupported event")
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) writeError(message string) {
	payload, err := encodeEvent(eventError, message)
	if err != nil {
		return
	}
	if !c.trySend(payload) {
		c.hub.Disconnect(c)
	}
}
