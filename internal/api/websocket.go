package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboard
	},
}

// Event names pushed over the dashboard feed, matching the engine's
// observer registrations one-for-one (spec §9 "Event emission":
// on_cycles_discovered, on_config_updated, on_memory_optimized).
const (
	EventCyclesDiscovered = "cycles_discovered"
	EventConfigUpdated    = "config_updated"
	EventMemoryOptimized  = "memory_optimized"
)

// Hub maintains the set of subscribed dashboard clients and fans
// engine observer events out to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

// NewHub creates an empty client registry. Run must be started in its
// own goroutine before any BroadcastEvent call can reach a client.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel and fans each message out to every
// connected client, dropping and closing any client whose write fails
// or hangs past its deadline.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Set write deadline to prevent blocked clients from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := client.WriteMessage(websocket.TextMessage, message)
			if err != nil {
				log.Printf("[Hub] write error, dropping client: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades an incoming request to a websocket connection and
// registers it to receive discovery/config/memory events until it
// disconnects.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Hub] failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mutex.Unlock()

	log.Printf("[Hub] dashboard client subscribed, total=%d", n)

	// Keep-alive loop: the hub only pushes events down, but must read to
	// detect client disconnects (gorilla/websocket requires a reader).
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			n := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[Hub] dashboard client disconnected, total=%d", n)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[Hub] read error: %v", err)
				}
				break
			}
		}
	}()
}

// ClientCount reports how many dashboard clients are currently
// subscribed, surfaced through the health endpoint.
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// BroadcastEvent marshals a named engine event and its payload into a
// {"type": event, "<event-key>": payload} envelope and queues it for
// every subscribed client. This is the one place the envelope is built,
// replacing the three near-identical marshal/log call sites that used
// to live in wireEvents.
func (h *Hub) BroadcastEvent(event string, payload any) {
	envelope := map[string]any{"type": event}
	switch event {
	case EventCyclesDiscovered:
		envelope["result"] = payload
	case EventConfigUpdated:
		envelope["settings"] = payload
	case EventMemoryOptimized:
		envelope["evicted"] = payload
	default:
		envelope["payload"] = payload
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[Hub] failed to marshal %s event: %v", event, err)
		return
	}
	h.broadcast <- data
}
