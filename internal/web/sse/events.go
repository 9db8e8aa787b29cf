package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventDepartmentCreated EventType = "department_created"
	EventDepartmentUpdated EventType = "department_updated"
	EventDepartmentDeleted EventType = "department_deleted"

	EventStockChanged EventType = "stock_changed"
	EventSalesChanged EventType = "sales_changed"

	EventConnected EventType = "connected"
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients. Events with a
// CompanyID only reach clients of that company; zero reaches everyone.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	CompanyID int64     `json:"-"`
}

// Client represents a connected SSE client
type Client struct {
	ID        string
	CompanyID int64
	Messages  chan []byte
}

// Broker manages SSE client connections and event broadcasting
type Broker struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	stopOnce   sync.Once
	heartbeat  time.Duration
	mu         sync.RWMutex
}

// NewBroker creates a new SSE broker
func NewBroker() *Broker {
	return newBroker(30 * time.Second)
}

func newBroker(heartbeat time.Duration) *Broker {
	b := &Broker{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 100),
		done:       make(chan struct{}),
		heartbeat:  heartbeat,
	}
	go b.run()
	return b
}

// run handles client registration and event broadcasting
func (b *Broker) run() {
	heartbeatTicker := time.NewTicker(b.heartbeat)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-b.done:
			b.mu.Lock()
			for _, client := range b.clients {
				close(client.Messages)
			}
			b.clients = make(map[string]*Client)
			b.mu.Unlock()
			log.Debug().Msg("SSE broker stopped")
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client.ID] = client
			total := len(b.clients)
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int64("company_id", client.CompanyID).Int("total_clients", total).Msg("SSE client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client.ID]; ok {
				delete(b.clients, client.ID)
				close(client.Messages)
			}
			total := len(b.clients)
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int("total_clients", total).Msg("SSE client disconnected")

		case event := <-b.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal SSE event")
				continue
			}

			message := formatSSEMessage(string(event.Type), data)

			b.mu.RLock()
			for _, client := range b.clients {
				if event.CompanyID != 0 && client.CompanyID != event.CompanyID {
					continue
				}
				select {
				case client.Messages <- message:
				default:
					// Client buffer full, skip this message
					log.Warn().Str("client_id", client.ID).Msg("SSE client buffer full, dropping message")
				}
			}
			b.mu.RUnlock()

		case <-heartbeatTicker.C:
			b.Broadcast(Event{Type: EventHeartbeat, Data: map[string]any{"time": time.Now().Unix()}})
		}
	}
}

// Broadcast sends an event to all matching clients
func (b *Broker) Broadcast(event Event) {
	select {
	case b.broadcast <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("SSE broadcast channel full, dropping event")
	}
}

// Publish broadcasts an event to the clients of one company.
func (b *Broker) Publish(companyID int64, eventType EventType, data any) {
	b.Broadcast(Event{Type: eventType, Data: data, CompanyID: companyID})
}

// Stop gracefully shuts down the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Serve streams events of companyID to the client until it disconnects.
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request, companyID int64) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	client := &Client{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Messages:  make(chan []byte, 32),
	}

	select {
	case b.register <- client:
	case <-b.done:
		http.Error(w, "Event stream closed", http.StatusServiceUnavailable)
		return
	}

	// Non-blocking on shutdown to avoid deadlock
	defer func() {
		select {
		case b.unregister <- client:
		case <-b.done:
		}
	}()

	hello, _ := json.Marshal(Event{
		Type: EventConnected,
		Data: map[string]any{"clientId": client.ID, "companyId": companyID},
	})
	_, _ = w.Write(formatSSEMessage(string(EventConnected), hello))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client.Messages:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// formatSSEMessage formats an SSE message with event type and data
func formatSSEMessage(eventType string, data []byte) []byte {
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", eventType, data)
}
