package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/sirupsen/logrus"
)

// Message types sent to screens
const (
	MessageNotification = "notification"
	MessageInvalidate   = "invalidate"
	MessageBoard        = "board"
	MessagePong         = "pong"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 32
)

// Message is one frame of the live feed
type Message struct {
	Type         string              `json:"type"`
	Notification *types.Notification `json:"notification,omitempty"`
	Change       *types.Change       `json:"change,omitempty"`
	Payload      interface{}         `json:"payload,omitempty"`
}

// inbound is what screens send
type inbound struct {
	Type string `json:"type"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub pushes notifications and table-change invalidations to every
// connected screen. A screen that falls behind is disconnected and is
// expected to reconnect and re-list.
type Hub struct {
	upgrader websocket.Upgrader
	clock    func() time.Time
	logger   *logrus.Entry

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clock:   time.Now,
		logger:  log.WithComponent("hub"),
		clients: make(map[string]*client),
	}
}

// Notify implements interfaces.Notifier
func (h *Hub) Notify(kind types.NotificationKind, title, message string) {
	h.Broadcast(Message{
		Type: MessageNotification,
		Notification: &types.Notification{
			Kind:    kind,
			Title:   title,
			Message: message,
			SentAt:  h.clock(),
		},
	})
}

// Invalidate tells screens that table changed
func (h *Hub) Invalidate(change types.Change) {
	h.Broadcast(Message{Type: MessageInvalidate, Change: &change})
}

// WatchTables forwards every change of the given tables as an invalidation
func (h *Hub) WatchTables(store interfaces.RowStore, tables ...string) (func(), error) {
	unsubs := make([]interfaces.Unsubscribe, 0, len(tables))
	stop := func() {
		for _, u := range unsubs {
			u()
		}
	}
	for _, table := range tables {
		unsub, err := store.Subscribe(table, h.Invalidate)
		if err != nil {
			stop()
			return nil, err
		}
		unsubs = append(unsubs, unsub)
	}
	return stop, nil
}

// Broadcast queues msg for every client
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.WithField("client_id", id).Warn("Dropping slow websocket client")
			delete(h.clients, id)
			c.close()
		}
	}
}

// Clients returns the number of connected screens
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}

// ServeHTTP upgrades the request and serves the live feed until the screen
// goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{id: uuid.New().String(), conn: conn, send: make(chan Message, clientSendSize)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.WithField("client_id", c.id).Debug("Websocket client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		if h.clients[c.id] == c {
			delete(h.clients, c.id)
			c.close()
		}
		h.mu.Unlock()
		h.logger.WithField("client_id", c.id).Debug("Websocket client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			// send is only closed under the write lock, after removal
			h.mu.RLock()
			if h.clients[c.id] == c {
				select {
				case c.send <- Message{Type: MessagePong}:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
