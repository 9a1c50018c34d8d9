package syncengine

import (
	"encoding/json"
	"log"

	"github.com/neonwatty/linkparty-sub000/internal/conflict"
	"github.com/neonwatty/linkparty-sub000/internal/party"
)

// FeedEvent is one change-feed frame as delivered by the realtime channel.
type FeedEvent struct {
	Type    string          `json:"type"`
	PartyID string          `json:"partyId"`
	Payload json.RawMessage `json:"payload"`
}

// HandleFeed reconciles one raw feed frame against the engine's state. Frames
// for other parties (stale subscriptions racing a party switch) are ignored;
// the current party id is read through the ref, never a captured value.
func (e *Engine) HandleFeed(data []byte) {
	var ev FeedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("watchparty client: bad feed frame: %v", err)
		return
	}
	if ev.PartyID != e.partyRef.ID() {
		return
	}

	switch ev.Type {
	case party.EventItemInsert:
		var it party.QueueItem
		if err := json.Unmarshal(ev.Payload, &it); err != nil {
			log.Printf("watchparty client: bad insert payload: %v", err)
			return
		}
		e.applyInsert(it)
	case party.EventItemUpdate:
		var it party.QueueItem
		if err := json.Unmarshal(ev.Payload, &it); err != nil {
			log.Printf("watchparty client: bad update payload: %v", err)
			return
		}
		e.applyUpdate(it)
	case party.EventItemDelete:
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			log.Printf("watchparty client: bad delete payload: %v", err)
			return
		}
		e.applyDelete(payload.ID)
	case party.EventMemberInsert:
		var m party.Member
		if err := json.Unmarshal(ev.Payload, &m); err != nil {
			return
		}
		e.applyMemberInsert(m)
	case party.EventMemberDelete:
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return
		}
		e.applyMemberDelete(payload.SessionID)
	}
}

// applyInsert confirms a row. A temporary placeholder at the same position is
// replaced by the confirmed row; duplicate deliveries are ignored; shown rows
// never enter the live view.
func (e *Engine) applyInsert(it party.QueueItem) {
	if e.itemIndex(it.ID) >= 0 {
		return
	}
	for i := range e.queue {
		if isTempID(e.queue[i].ID) && e.queue[i].Position == it.Position {
			if it.Status == party.StatusShown {
				e.queue = append(e.queue[:i], e.queue[i+1:]...)
			} else {
				e.queue[i] = it
			}
			e.sortQueue()
			return
		}
	}
	if it.Status == party.StatusShown {
		return
	}
	e.queue = append(e.queue, it)
	e.sortQueue()
}

// applyUpdate reconciles a confirmed update. Pending local edits for the row
// are checked first; any that the server superseded produce an advisory
// notice and are cleared, then the server row replaces the local one.
func (e *Engine) applyUpdate(it party.QueueItem) {
	i := e.itemIndex(it.ID)

	if i >= 0 {
		for _, change := range e.pending.ForItem(it.ID) {
			if info := conflict.Detect(e.queue[i], it, change); info != nil {
				e.emitConflict(*info)
				e.pending.Clear(it.ID, change.Field)
			}
		}
	}

	if it.Status == party.StatusShown {
		if i >= 0 {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
		}
		return
	}

	if i >= 0 {
		e.queue[i] = it
	} else {
		// Re-entering the live view from a prior shown state.
		e.queue = append(e.queue, it)
	}
	e.sortQueue()
}

// applyDelete reports a deletion conflict when the row still had pending
// local edits, then removes it.
func (e *Engine) applyDelete(id string) {
	i := e.itemIndex(id)
	if i < 0 {
		e.pending.ClearItem(id)
		return
	}
	deletions := conflict.DetectDeletions(e.queue[i:i+1], nil, e.pending)
	for _, info := range deletions {
		e.emitConflict(info)
	}
	e.queue = append(e.queue[:i], e.queue[i+1:]...)
}

func (e *Engine) applyMemberInsert(m party.Member) {
	for i := range e.members {
		if e.members[i].SessionID == m.SessionID {
			e.members[i] = m
			return
		}
	}
	e.members = append(e.members, m)
}

func (e *Engine) applyMemberDelete(sessionID string) {
	for i := range e.members {
		if e.members[i].SessionID == sessionID {
			e.members = append(e.members[:i], e.members[i+1:]...)
			return
		}
	}
}

func isTempID(id string) bool {
	return len(id) > 5 && id[:5] == "temp-"
}
