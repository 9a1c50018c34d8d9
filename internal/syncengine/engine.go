package syncengine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/neonwatty/linkparty-sub000/internal/conflict"
	"github.com/neonwatty/linkparty-sub000/internal/party"
	"github.com/neonwatty/linkparty-sub000/internal/ratelimit"
)

// Limits are the client-side limiters. They are a UX speed bump only; the
// server enforces the real quota.
type Limits struct {
	Add     *ratelimit.Limiter
	Reorder *ratelimit.Limiter
	Note    *ratelimit.Limiter
	Advance *ratelimit.Limiter
}

func DefaultLimits() *Limits {
	return &Limits{
		Add:     ratelimit.New(10, time.Minute),
		Reorder: ratelimit.New(10, time.Minute),
		Note:    ratelimit.New(5, time.Minute),
		Advance: ratelimit.New(10, time.Minute),
	}
}

// PartyRef is the single indirection point through which feed handlers read
// the current party id. Handlers keep a *PartyRef, never a captured id, so a
// party switch is visible to every closure immediately.
type PartyRef struct {
	id string
}

func (r *PartyRef) ID() string    { return r.id }
func (r *PartyRef) Set(id string) { r.id = id }
func (r *PartyRef) Clear()        { r.id = "" }

// Engine owns the client-side view of one party: the live queue, the member
// list, and the pending-change log. All methods must be called from a single
// goroutine (the app's event loop); the engine does no internal locking.
type Engine struct {
	remote    Remote
	limits    *Limits
	pending   *conflict.Log
	partyRef  *PartyRef
	sessionID string

	queue   []party.QueueItem
	members []party.Member

	// syncing holds ids whose optimistic change is awaiting the remote call.
	syncing map[string]bool

	// onConflict receives advisory notices; nil means DrainConflicts.
	onConflict func(conflict.Info)
	conflicts  []conflict.Info

	now func() time.Time
}

func New(remote Remote, sessionID string) *Engine {
	return &Engine{
		remote:    remote,
		limits:    DefaultLimits(),
		pending:   conflict.NewLog(),
		partyRef:  &PartyRef{},
		sessionID: sessionID,
		syncing:   make(map[string]bool),
		now:       time.Now,
	}
}

// OnConflict installs a sink for advisory conflict notices.
func (e *Engine) OnConflict(fn func(conflict.Info)) { e.onConflict = fn }

// DrainConflicts returns and clears the accumulated notices (used when no
// sink is installed).
func (e *Engine) DrainConflicts() []conflict.Info {
	out := e.conflicts
	e.conflicts = nil
	return out
}

func (e *Engine) emitConflict(info conflict.Info) {
	if e.onConflict != nil {
		e.onConflict(info)
		return
	}
	e.conflicts = append(e.conflicts, info)
}

// Attach points the engine at a party and seeds its state from a snapshot.
func (e *Engine) Attach(partyID string, items []party.QueueItem, members []party.Member) {
	e.partyRef.Set(partyID)
	e.queue = nil
	for _, it := range items {
		if it.Status != party.StatusShown {
			e.queue = append(e.queue, it)
		}
	}
	e.sortQueue()
	e.members = append([]party.Member(nil), members...)
	e.pending.ClearAll()
	e.syncing = make(map[string]bool)
}

// Detach stops reconciling and best-effort fires a leave call. In-flight
// mutations complete or fail with no further UI effect.
func (e *Engine) Detach(ctx context.Context) {
	partyID := e.partyRef.ID()
	e.partyRef.Clear()
	e.queue = nil
	e.members = nil
	e.pending.ClearAll()
	e.syncing = make(map[string]bool)
	if partyID != "" {
		_ = e.remote.Leave(ctx, partyID, e.sessionID)
	}
}

// Queue returns the live queue in position order.
func (e *Engine) Queue() []party.QueueItem {
	out := make([]party.QueueItem, len(e.queue))
	copy(out, e.queue)
	return out
}

// Members returns the current member list.
func (e *Engine) Members() []party.Member {
	out := make([]party.Member, len(e.members))
	copy(out, e.members)
	return out
}

// Syncing reports whether id has an optimistic change in flight.
func (e *Engine) Syncing(id string) bool { return e.syncing[id] }

// PendingCount reports the size of the pending-change log.
func (e *Engine) PendingCount() int { return e.pending.Len() }

func (e *Engine) sortQueue() {
	sort.SliceStable(e.queue, func(i, j int) bool {
		return e.queue[i].Position < e.queue[j].Position
	})
}

func (e *Engine) itemIndex(id string) int {
	for i := range e.queue {
		if e.queue[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) tempID() string {
	return fmt.Sprintf("temp-%d", e.now().UnixNano())
}
