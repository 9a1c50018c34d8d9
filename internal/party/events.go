package party

import (
	"context"
	"encoding/json"
	"log"
)

// Feed event types. The realtime service routes each event to the clients
// attached to its party.
const (
	EventItemInsert   = "queue_item.insert"
	EventItemUpdate   = "queue_item.update"
	EventItemDelete   = "queue_item.delete"
	EventMemberInsert = "party_member.insert"
	EventMemberDelete = "party_member.delete"
)

// publishEvent broadcasts a committed row on the redis change feed. Publish
// failures are logged, never surfaced: the mutation already committed and the
// response must reflect that.
func (s *Server) publishEvent(ctx context.Context, eventType, partyID string, payload any) {
	if s.rdb == nil {
		return
	}
	event := map[string]any{
		"type":    eventType,
		"partyId": partyID,
		"payload": payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("watchparty: marshal event %s: %v", eventType, err)
		return
	}
	if err := s.rdb.Publish(ctx, "broadcast", string(data)).Err(); err != nil {
		log.Printf("watchparty: publish event %s: %v", eventType, err)
	}
}
