package realtime

// Event is one change-feed frame routed to the clients of a single party.
type Event struct {
	PartyID string
	Data    []byte
}

// Hub owns the client registry and fans committed-row events out to the
// clients attached to the event's party.
type Hub struct {
	// Registered clients, each attached to exactly one party.
	clients map[*Client]bool

	// Inbound events from the feed subscriber.
	broadcast chan Event

	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Broadcast queues an event for delivery to partyID's clients.
func (h *Hub) Broadcast(partyID string, data []byte) {
	h.broadcast <- Event{PartyID: partyID, Data: data}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				_ = client.conn.Close()
			}

		case ev := <-h.broadcast:
			for client := range h.clients {
				if client.partyID != ev.PartyID {
					continue
				}
				select {
				case client.send <- ev.Data:
				default:
					// Slow consumer: drop it rather than stall the feed.
					delete(h.clients, client)
					close(client.send)
					_ = client.conn.Close()
				}
			}
		}
	}
}
