// Package notify fans out HA state-transition events (leader elected,
// transfer window entered/cleared, leader lost, CN sweep alive/lost) to
// subscribed operator consoles over WebSocket. It is additive
// observability, analogous to the teacher's MonitorHub: it has no
// dependency on internal/ha beyond the event shape callers hand it, and
// cannot affect any Selector or Health Loop invariant.
//
// Adapted directly from the teacher's internal/websocket/monitor.go
// (MonitorHub): same register/unregister/broadcast channel trio, with
// MonitorEvent's free-form Data payload replaced by a TopologyEvent with
// cluster tag, component, state and detail fields (State is a plain
// string set by the publisher).
package notify

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TopologyEvent is one state transition observed by a DN or CN health
// loop, shaped for operator consumption (SPEC_FULL.md "Status & notify
// surfaces").
type TopologyEvent struct {
	ClusterTag string    `json:"cluster_tag"`
	Component  string    `json:"component"` // "dn" | "cn"
	State      string    `json:"state"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TopologyHub manages WebSocket subscribers and fans out TopologyEvents.
type TopologyHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan TopologyEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
}

// NewTopologyHub creates an idle hub; call Run in its own goroutine to
// start serving.
func NewTopologyHub() *TopologyHub {
	return &TopologyHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan TopologyEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run serves the hub's event loop until the process exits; intended to be
// started once via `go hub.Run()`.
func (h *TopologyHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("notify: operator console connected, total: %d", len(h.clients))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			log.Printf("notify: operator console disconnected, total: %d", len(h.clients))

		case event := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					log.Printf("notify: websocket write error: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register adds a newly upgraded connection to the hub.
func (h *TopologyHub) Register(conn *websocket.Conn) { h.register <- conn }

// Unregister removes conn from the hub.
func (h *TopologyHub) Unregister(conn *websocket.Conn) { h.unregister <- conn }

// Publish sends a transition event to every connected operator console.
// Non-blocking: a full channel drops the event rather than stalling the
// health loop that (indirectly, via a small adapter) calls this.
func (h *TopologyHub) Publish(clusterTag, component, state, detail string) {
	event := TopologyEvent{
		ClusterTag: clusterTag,
		Component:  component,
		State:      state,
		Detail:     detail,
		Timestamp:  time.Now(),
	}
	select {
	case h.broadcast <- event:
	default:
		log.Printf("notify: broadcast channel full, dropping event for %s", clusterTag)
	}
}
