package syncengine

import (
	"context"

	"github.com/neonwatty/linkparty-sub000/internal/conflict"
	"github.com/neonwatty/linkparty-sub000/internal/party"
)

// UpdatePosition moves one item to an explicit (possibly fractional) position
// via the single-item PATCH path.
func (e *Engine) UpdatePosition(ctx context.Context, itemID string, position float64) error {
	if err := e.limits.Reorder.TryAction("queue:reorder"); err != nil {
		return err
	}
	err := e.updateField(ctx, itemID, conflict.FieldPosition,
		func(it *party.QueueItem) (any, any) {
			old := it.Position
			it.Position = position
			return old, position
		},
		UpdateItemRequest{Action: "updatePosition", Position: &position})
	e.sortQueue()
	return err
}

// MoveItem repositions a pending item to toIndex within the pending portion
// of the queue. An adjacent move sends a 2-row swap; a longer move sends only
// the minimal contiguous span of positions that actually change. Items
// outside the touched span are never re-sent.
func (e *Engine) MoveItem(ctx context.Context, itemID string, toIndex int) error {
	partyID := e.partyRef.ID()
	if partyID == "" {
		return ErrNotAttached
	}
	if err := e.limits.Reorder.TryAction("queue:reorder"); err != nil {
		return err
	}

	pending := e.pendingIndexes()
	from := -1
	for k, qi := range pending {
		if e.queue[qi].ID == itemID {
			from = k
			break
		}
	}
	if from < 0 {
		return ErrItemNotFound
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(pending)-1 {
		toIndex = len(pending) - 1
	}
	if toIndex == from {
		return nil
	}

	// Slot positions stay fixed; items permute across them.
	slotPositions := make([]float64, len(pending))
	oldIDs := make([]string, len(pending))
	for k, qi := range pending {
		slotPositions[k] = e.queue[qi].Position
		oldIDs[k] = e.queue[qi].ID
	}
	newIDs := moveIndex(oldIDs, from, toIndex)

	updates := changedSpan(oldIDs, newIDs, slotPositions)
	if len(updates) == 0 {
		return nil
	}

	priorQueue := make([]party.QueueItem, len(e.queue))
	copy(priorQueue, e.queue)

	now := e.now()
	for _, u := range updates {
		if i := e.itemIndex(u.ID); i >= 0 {
			e.pending.Add(conflict.PendingChange{
				ItemID:    u.ID,
				Field:     conflict.FieldPosition,
				OldValue:  e.queue[i].Position,
				NewValue:  u.Position,
				Timestamp: now,
			})
			e.queue[i].Position = u.Position
			e.syncing[u.ID] = true
		}
	}
	e.sortQueue()

	err := e.remote.Reorder(ctx, partyID, e.sessionID, updates)
	for _, u := range updates {
		delete(e.syncing, u.ID)
	}
	if err != nil {
		e.queue = priorQueue
		for _, u := range updates {
			e.pending.Clear(u.ID, conflict.FieldPosition)
		}
		return err
	}
	for _, u := range updates {
		e.pending.Clear(u.ID, conflict.FieldPosition)
	}
	return nil
}

// pendingIndexes returns queue indexes of pending items, in queue order.
func (e *Engine) pendingIndexes() []int {
	var out []int
	for i := range e.queue {
		if e.queue[i].Status == party.StatusPending {
			out = append(out, i)
		}
	}
	return out
}

// moveIndex returns ids with the element at from re-inserted at to.
func moveIndex(ids []string, from, to int) []string {
	out := make([]string, 0, len(ids))
	out = append(out, ids[:from]...)
	out = append(out, ids[from+1:]...)
	out = append(out[:to], append([]string{ids[from]}, out[to:]...)...)
	return out
}

// changedSpan diffs two orderings over fixed slot positions and returns
// updates only for the contiguous range of slots whose occupant changed.
func changedSpan(oldIDs, newIDs []string, slotPositions []float64) []party.PositionUpdate {
	first, last := -1, -1
	for k := range oldIDs {
		if oldIDs[k] != newIDs[k] {
			if first < 0 {
				first = k
			}
			last = k
		}
	}
	if first < 0 {
		return nil
	}
	updates := make([]party.PositionUpdate, 0, last-first+1)
	for k := first; k <= last; k++ {
		updates = append(updates, party.PositionUpdate{
			ID:       newIDs[k],
			Position: slotPositions[k],
		})
	}
	return updates
}
