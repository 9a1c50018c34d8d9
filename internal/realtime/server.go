package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	hub           *Hub
	rdb           *redis.Client
	allowedOrigin string
}

func NewServer(hub *Hub, rdb *redis.Client, allowedOrigin string) *Server {
	return &Server{
		hub:           hub,
		rdb:           rdb,
		allowedOrigin: allowedOrigin,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/ws", s.handleWS)

	return r
}

// RunSubscriber bridges the redis change feed into the hub, routing each
// event by the partyId it carries. Events without a party id are dropped.
func (s *Server) RunSubscriber(ctx context.Context) {
	sub := s.rdb.Subscribe(ctx, "broadcast")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope struct {
				PartyID string `json:"partyId"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil || envelope.PartyID == "" {
				log.Printf("watchparty: feed event without party id, dropping")
				continue
			}
			s.hub.Broadcast(envelope.PartyID, []byte(msg.Payload))
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	partyID := r.URL.Query().Get("partyId")
	if partyID == "" {
		http.Error(w, "missing partyId", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if s.allowedOrigin == "" || s.allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == s.allowedOrigin
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("watchparty: ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:     s.hub,
		conn:    conn,
		partyID: partyID,
		send:    make(chan []byte, 256),
	}
	s.hub.register <- client

	welcome := map[string]any{
		"type":    "welcome",
		"partyId": partyID,
		"now":     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	go client.writePump()
	go client.readPump()
}
