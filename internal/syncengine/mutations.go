package syncengine

import (
	"context"
	"errors"
	"time"

	"github.com/neonwatty/linkparty-sub000/internal/conflict"
	"github.com/neonwatty/linkparty-sub000/internal/party"
)

// ErrNotAttached is returned when a mutation is attempted with no party
// attached.
var ErrNotAttached = errors.New("not attached to a party")

// ErrItemNotFound is returned when a mutation names an id missing from the
// live queue.
var ErrItemNotFound = errors.New("item not found in queue")

// AddItem applies an optimistic insert under a temporary id and issues the
// remote call. The temporary entry stays in the queue until the confirmed
// insert event replaces it; on remote failure it is removed.
func (e *Engine) AddItem(ctx context.Context, req AddItemRequest) (string, error) {
	partyID := e.partyRef.ID()
	if partyID == "" {
		return "", ErrNotAttached
	}
	if err := e.limits.Add.TryAction("queue:add"); err != nil {
		return "", err
	}

	req.SessionID = e.sessionID
	if req.Status == "" {
		req.Status = party.StatusPending
	}

	tempID := e.tempID()
	optimistic := party.QueueItem{
		ID:               tempID,
		PartyID:          partyID,
		Position:         req.Position,
		Status:           req.Status,
		Type:             req.Type,
		URL:              req.URL,
		Title:            req.Title,
		NoteContent:      req.NoteContent,
		ImageURL:         req.ImageURL,
		AddedBySessionID: e.sessionID,
		AddedByName:      req.AddedByName,
		CreatedAt:        e.now(),
	}
	e.queue = append(e.queue, optimistic)
	e.sortQueue()
	e.syncing[tempID] = true

	_, err := e.remote.AddItem(ctx, partyID, req)
	delete(e.syncing, tempID)
	if err != nil {
		// Roll back: drop the placeholder.
		if i := e.itemIndex(tempID); i >= 0 {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
		}
		return "", err
	}
	// Do not merge the HTTP response into the queue: the insert event on the
	// feed is the source of truth and will replace the placeholder.
	return tempID, nil
}

// AddItemNext inserts between the showing item and the first pending one by
// giving the new item a fractional position, so siblings keep their numbers.
func (e *Engine) AddItemNext(ctx context.Context, req AddItemRequest) (string, error) {
	for _, it := range e.queue {
		if it.Status == party.StatusShowing {
			req.Position = it.Position + 0.5
			return e.AddItem(ctx, req)
		}
	}
	// No showing item: go to the front.
	if len(e.queue) > 0 {
		req.Position = e.queue[0].Position - 1
	}
	return e.AddItem(ctx, req)
}

// UpdateNote edits an item's note optimistically.
func (e *Engine) UpdateNote(ctx context.Context, itemID, noteContent string) error {
	if err := e.limits.Note.TryAction("queue:note"); err != nil {
		return err
	}
	return e.updateField(ctx, itemID, conflict.FieldNoteContent,
		func(it *party.QueueItem) (any, any) {
			old := it.NoteContent
			it.NoteContent = noteContent
			return old, noteContent
		},
		UpdateItemRequest{Action: "updateNote", NoteContent: &noteContent})
}

// ToggleComplete flips an item's completion flag optimistically.
func (e *Engine) ToggleComplete(ctx context.Context, itemID string, completed bool, completedByUserID *string) error {
	now := e.now()
	req := UpdateItemRequest{
		Action:            "toggleComplete",
		IsCompleted:       &completed,
		CompletedByUserID: completedByUserID,
	}
	if completed {
		req.CompletedAt = &now
	}
	return e.updateField(ctx, itemID, conflict.FieldIsCompleted,
		func(it *party.QueueItem) (any, any) {
			old := it.IsCompleted
			it.IsCompleted = completed
			if completed {
				it.CompletedAt = &now
				it.CompletedByUserID = completedByUserID
			} else {
				it.CompletedAt = nil
				it.CompletedByUserID = nil
			}
			return old, completed
		},
		req)
}

// UpdateDueDate sets or clears an item's due date optimistically.
func (e *Engine) UpdateDueDate(ctx context.Context, itemID string, dueDate *time.Time) error {
	return e.updateField(ctx, itemID, conflict.FieldDueDate,
		func(it *party.QueueItem) (any, any) {
			old := it.DueDate
			it.DueDate = dueDate
			return old, dueDate
		},
		UpdateItemRequest{Action: "updateDueDate", DueDate: dueDate})
}

// updateField is the shared optimistic single-field flow: capture the exact
// prior item, apply, record the pending change, call the server, and on
// failure restore the captured value (never a recomputed approximation).
func (e *Engine) updateField(ctx context.Context, itemID, field string, apply func(*party.QueueItem) (any, any), req UpdateItemRequest) error {
	partyID := e.partyRef.ID()
	if partyID == "" {
		return ErrNotAttached
	}
	i := e.itemIndex(itemID)
	if i < 0 {
		return ErrItemNotFound
	}

	prior := e.queue[i]
	oldVal, newVal := apply(&e.queue[i])
	e.pending.Add(conflict.PendingChange{
		ItemID:    itemID,
		Field:     field,
		OldValue:  oldVal,
		NewValue:  newVal,
		Timestamp: e.now(),
	})
	e.syncing[itemID] = true

	req.SessionID = e.sessionID
	err := e.remote.UpdateItem(ctx, partyID, itemID, req)
	delete(e.syncing, itemID)
	if err != nil {
		if j := e.itemIndex(itemID); j >= 0 {
			e.queue[j] = prior
		}
		e.pending.Clear(itemID, field)
		return err
	}
	e.pending.Clear(itemID, field)
	return nil
}

// DeleteItem removes an item optimistically.
func (e *Engine) DeleteItem(ctx context.Context, itemID string) error {
	partyID := e.partyRef.ID()
	if partyID == "" {
		return ErrNotAttached
	}
	i := e.itemIndex(itemID)
	if i < 0 {
		return ErrItemNotFound
	}

	prior := e.queue[i]
	e.queue = append(e.queue[:i], e.queue[i+1:]...)
	e.syncing[itemID] = true

	err := e.remote.DeleteItem(ctx, partyID, itemID, e.sessionID)
	delete(e.syncing, itemID)
	if err != nil {
		e.queue = append(e.queue, prior)
		e.sortQueue()
		return err
	}
	e.pending.ClearItem(itemID)
	return nil
}

// Advance retires the showing item and promotes the first pending one,
// optimistically mirroring what the server's advance transaction will do.
func (e *Engine) Advance(ctx context.Context) error {
	partyID := e.partyRef.ID()
	if partyID == "" {
		return ErrNotAttached
	}
	if err := e.limits.Advance.TryAction("queue:advance"); err != nil {
		return err
	}

	var showingID, firstPendingID string
	for _, it := range e.queue {
		if it.Status == party.StatusShowing && showingID == "" {
			showingID = it.ID
		}
		if it.Status == party.StatusPending && firstPendingID == "" {
			firstPendingID = it.ID
		}
	}
	if showingID == "" && firstPendingID == "" {
		return ErrItemNotFound
	}

	priorQueue := make([]party.QueueItem, len(e.queue))
	copy(priorQueue, e.queue)

	// Optimistic: shown items leave the live view, the first pending shows.
	next := e.queue[:0]
	for _, it := range e.queue {
		if it.ID == showingID {
			continue
		}
		if it.ID == firstPendingID {
			it.Status = party.StatusShowing
		}
		next = append(next, it)
	}
	e.queue = next

	err := e.remote.Advance(ctx, partyID, e.sessionID, showingID, firstPendingID)
	if err != nil {
		e.queue = priorQueue
		return err
	}
	return nil
}
