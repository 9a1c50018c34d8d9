package syncengine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neonwatty/linkparty-sub000/internal/party"
)

func queueIDs(q []party.QueueItem) []string {
	ids := make([]string, len(q))
	for i, it := range q {
		ids[i] = it.ID
	}
	return ids
}

func TestMoveIndex(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}

	assert.Equal(t, []string{"b", "c", "a", "d"}, moveIndex(ids, 0, 2))
	assert.Equal(t, []string{"d", "a", "b", "c"}, moveIndex(ids, 3, 0))
	assert.Equal(t, []string{"b", "a", "c", "d"}, moveIndex(ids, 0, 1))
}

func TestChangedSpanAdjacentSwap(t *testing.T) {
	oldIDs := []string{"a", "b", "c", "d"}
	newIDs := []string{"b", "a", "c", "d"}
	slots := []float64{1, 2, 3, 4}

	updates := changedSpan(oldIDs, newIDs, slots)
	assert.Equal(t, []party.PositionUpdate{
		{ID: "b", Position: 1},
		{ID: "a", Position: 2},
	}, updates)
}

func TestChangedSpanLongMove(t *testing.T) {
	oldIDs := []string{"a", "b", "c", "d", "e"}
	newIDs := moveIndex(oldIDs, 0, 3) // b c d a e
	slots := []float64{1, 2, 3, 4, 5}

	updates := changedSpan(oldIDs, newIDs, slots)
	// Slots 0..3 changed occupants; e keeps slot 4 and is not re-sent.
	assert.Equal(t, []party.PositionUpdate{
		{ID: "b", Position: 1},
		{ID: "c", Position: 2},
		{ID: "d", Position: 3},
		{ID: "a", Position: 4},
	}, updates)
}

func TestChangedSpanNoChange(t *testing.T) {
	ids := []string{"a", "b"}
	assert.Nil(t, changedSpan(ids, ids, []float64{1, 2}))
}

func TestMoveItemSendsMinimalSpan(t *testing.T) {
	var got []party.PositionUpdate
	remote := &mockRemote{ReorderFunc: func(ctx context.Context, partyID, sessionID string, updates []party.PositionUpdate) error {
		got = updates
		return nil
	}}
	e := newTestEngine(remote,
		queueItem("a", 1, party.StatusPending),
		queueItem("b", 2, party.StatusPending),
		queueItem("c", 3, party.StatusPending),
		queueItem("d", 4, party.StatusPending),
	)

	assert.NoError(t, e.MoveItem(context.Background(), "a", 2))

	assert.Equal(t, []party.PositionUpdate{
		{ID: "b", Position: 1},
		{ID: "c", Position: 2},
		{ID: "a", Position: 3},
	}, got)
	assert.Equal(t, []string{"b", "c", "a", "d"}, queueIDs(e.Queue()))
	assert.Equal(t, 0, e.PendingCount())
}

func TestMoveItemSkipsNonPendingSlots(t *testing.T) {
	var got []party.PositionUpdate
	remote := &mockRemote{ReorderFunc: func(ctx context.Context, partyID, sessionID string, updates []party.PositionUpdate) error {
		got = updates
		return nil
	}}
	e := newTestEngine(remote,
		queueItem("showing", 1, party.StatusShowing),
		queueItem("a", 2, party.StatusPending),
		queueItem("b", 3, party.StatusPending),
	)

	// Index 0 of the pending portion, not of the whole queue: the showing
	// item never moves.
	assert.NoError(t, e.MoveItem(context.Background(), "b", 0))
	assert.Equal(t, []party.PositionUpdate{
		{ID: "b", Position: 2},
		{ID: "a", Position: 3},
	}, got)
	assert.Equal(t, []string{"showing", "b", "a"}, queueIDs(e.Queue()))
}

func TestMoveItemClampsTargetIndex(t *testing.T) {
	remote := &mockRemote{}
	e := newTestEngine(remote,
		queueItem("a", 1, party.StatusPending),
		queueItem("b", 2, party.StatusPending),
	)

	assert.NoError(t, e.MoveItem(context.Background(), "a", 99))
	assert.Equal(t, []string{"b", "a"}, queueIDs(e.Queue()))
}

func TestMoveItemToSamePlaceIsNoop(t *testing.T) {
	remote := &mockRemote{}
	e := newTestEngine(remote,
		queueItem("a", 1, party.StatusPending),
		queueItem("b", 2, party.StatusPending),
	)

	assert.NoError(t, e.MoveItem(context.Background(), "a", 0))
	assert.Empty(t, remote.calls)
}

func TestMoveItemRollsBackOnRemoteFailure(t *testing.T) {
	remote := &mockRemote{ReorderFunc: func(ctx context.Context, partyID, sessionID string, updates []party.PositionUpdate) error {
		return errors.New("boom")
	}}
	e := newTestEngine(remote,
		queueItem("a", 1, party.StatusPending),
		queueItem("b", 2, party.StatusPending),
		queueItem("c", 3, party.StatusPending),
	)

	assert.Error(t, e.MoveItem(context.Background(), "a", 2))
	assert.Equal(t, []string{"a", "b", "c"}, queueIDs(e.Queue()))
	assert.Equal(t, 0, e.PendingCount())
}

func TestUpdatePositionKeepsQueueSorted(t *testing.T) {
	e := newTestEngine(&mockRemote{},
		queueItem("a", 1, party.StatusPending),
		queueItem("b", 2, party.StatusPending),
	)

	assert.NoError(t, e.UpdatePosition(context.Background(), "a", 2.5))
	assert.Equal(t, []string{"b", "a"}, queueIDs(e.Queue()))
}

func TestMoveItemRateLimited(t *testing.T) {
	e := newTestEngine(&mockRemote{},
		queueItem("a", 1, party.StatusPending),
		queueItem("b", 2, party.StatusPending),
	)

	// Client-side reorder quota is 10 per minute.
	for i := 0; i < 10; i++ {
		target := 1 - i%2
		assert.NoError(t, e.MoveItem(context.Background(), "a", target))
	}
	err := e.MoveItem(context.Background(), "a", 1)
	assert.Error(t, err)
}
