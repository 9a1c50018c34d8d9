package syncengine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/neonwatty/linkparty-sub000/internal/conflict"
	"github.com/neonwatty/linkparty-sub000/internal/party"
)

func feedFrame(t *testing.T, eventType, partyID string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	assert.NoError(t, err)
	data, err := json.Marshal(FeedEvent{Type: eventType, PartyID: partyID, Payload: raw})
	assert.NoError(t, err)
	return data
}

func TestFeedIgnoresOtherParties(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	e.HandleFeed(feedFrame(t, party.EventItemInsert, "p999", queueItem("b", 2, party.StatusPending)))
	assert.Len(t, e.Queue(), 1)
}

func TestFeedIgnoresFramesAfterPartySwitch(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	// A frame for the old party arriving after a switch must not leak into
	// the new party's queue.
	frame := feedFrame(t, party.EventItemInsert, "p1", queueItem("late", 5, party.StatusPending))
	e.Attach("p2", nil, nil)
	e.HandleFeed(frame)
	assert.Empty(t, e.Queue())
}

func TestFeedInsertReplacesTempPlaceholder(t *testing.T) {
	e := newTestEngine(&mockRemote{})

	tempID, err := e.AddItem(context.Background(), AddItemRequest{
		Type:     party.TypeLink,
		URL:      "http://example.com/new",
		Position: 2,
	})
	assert.NoError(t, err)

	confirmed := queueItem("real-id", 2, party.StatusPending)
	e.HandleFeed(feedFrame(t, party.EventItemInsert, "p1", confirmed))

	// Exactly one row: the placeholder swapped for the confirmed insert.
	q := e.Queue()
	assert.Len(t, q, 1)
	assert.Equal(t, "real-id", q[0].ID)
	assert.Equal(t, -1, e.itemIndex(tempID))
}

func TestFeedInsertIgnoresDuplicates(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	e.HandleFeed(feedFrame(t, party.EventItemInsert, "p1", queueItem("a", 1, party.StatusPending)))
	assert.Len(t, e.Queue(), 1)
}

func TestFeedInsertDropsShownRows(t *testing.T) {
	e := newTestEngine(&mockRemote{})

	e.HandleFeed(feedFrame(t, party.EventItemInsert, "p1", queueItem("old", 1, party.StatusShown)))
	assert.Empty(t, e.Queue())
}

func TestFeedUpdateReplacesRow(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	updated := queueItem("a", 1, party.StatusPending)
	updated.Title = "renamed"
	e.HandleFeed(feedFrame(t, party.EventItemUpdate, "p1", updated))
	assert.Equal(t, "renamed", e.Queue()[0].Title)
}

func TestFeedUpdateRemovesShownRow(t *testing.T) {
	e := newTestEngine(&mockRemote{},
		queueItem("a", 1, party.StatusShowing),
		queueItem("b", 2, party.StatusPending),
	)

	retired := queueItem("a", 1, party.StatusShown)
	e.HandleFeed(feedFrame(t, party.EventItemUpdate, "p1", retired))
	assert.Equal(t, []string{"b"}, queueIDs(e.Queue()))
}

func TestFeedUpdateReportsPositionConflict(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	// A local move is in flight when the rival's reorder lands on the feed.
	e.pending.Add(conflict.PendingChange{
		ItemID:    "a",
		Field:     conflict.FieldPosition,
		OldValue:  float64(1),
		NewValue:  float64(3),
		Timestamp: e.now(),
	})

	server := queueItem("a", 7, party.StatusPending)
	server.Title = "moved by rival"
	server.UpdatedAt = e.now().Add(time.Minute)
	e.HandleFeed(feedFrame(t, party.EventItemUpdate, "p1", server))

	infos := e.DrainConflicts()
	assert.Len(t, infos, 1)
	assert.Equal(t, conflict.TypePosition, infos[0].Type)
	assert.Equal(t, "a", infos[0].ItemID)

	// Advisory only: the server row won regardless.
	assert.Equal(t, float64(7), e.Queue()[0].Position)
	assert.Equal(t, 0, e.PendingCount())
}

func TestFeedUpdateConflictSink(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	var seen []conflict.Info
	e.OnConflict(func(info conflict.Info) { seen = append(seen, info) })

	e.pending.Add(conflict.PendingChange{
		ItemID:    "a",
		Field:     conflict.FieldNoteContent,
		OldValue:  "",
		NewValue:  "mine",
		Timestamp: e.now(),
	})
	server := queueItem("a", 1, party.StatusPending)
	server.NoteContent = "theirs"
	server.UpdatedAt = e.now().Add(time.Minute)
	e.HandleFeed(feedFrame(t, party.EventItemUpdate, "p1", server))

	assert.Len(t, seen, 1)
	assert.Equal(t, conflict.TypeContent, seen[0].Type)
	assert.Empty(t, e.DrainConflicts())
}

func TestFeedDeleteReportsConflictForPendingEdits(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	e.pending.Add(conflict.PendingChange{
		ItemID:    "a",
		Field:     conflict.FieldNoteContent,
		OldValue:  "",
		NewValue:  "mine",
		Timestamp: e.now(),
	})
	e.HandleFeed(feedFrame(t, party.EventItemDelete, "p1", map[string]string{"id": "a", "partyId": "p1"}))

	infos := e.DrainConflicts()
	assert.Len(t, infos, 1)
	assert.Equal(t, conflict.TypeDeleted, infos[0].Type)
	assert.Empty(t, e.Queue())
}

func TestFeedDeleteWithoutPendingEditsIsSilent(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	e.HandleFeed(feedFrame(t, party.EventItemDelete, "p1", map[string]string{"id": "a"}))
	assert.Empty(t, e.DrainConflicts())
	assert.Empty(t, e.Queue())
}

func TestFeedMemberInsertAndDelete(t *testing.T) {
	e := newTestEngine(&mockRemote{})

	e.HandleFeed(feedFrame(t, party.EventMemberInsert, "p1", party.Member{
		PartyID: "p1", SessionID: "sess-2", Name: "guest",
	}))
	assert.Len(t, e.Members(), 2)

	// Re-joining updates in place rather than duplicating.
	e.HandleFeed(feedFrame(t, party.EventMemberInsert, "p1", party.Member{
		PartyID: "p1", SessionID: "sess-2", Name: "renamed guest",
	}))
	m := e.Members()
	assert.Len(t, m, 2)
	assert.Equal(t, "renamed guest", m[1].Name)

	e.HandleFeed(feedFrame(t, party.EventMemberDelete, "p1", map[string]string{"sessionId": "sess-2"}))
	assert.Len(t, e.Members(), 1)
}

func TestFeedMalformedFrameIsDropped(t *testing.T) {
	e := newTestEngine(&mockRemote{}, queueItem("a", 1, party.StatusPending))

	e.HandleFeed([]byte("{not json"))
	assert.Len(t, e.Queue(), 1)
}
