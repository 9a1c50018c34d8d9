package party

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/neonwatty/linkparty-sub000/internal/ratelimit"
)

// Limits holds one limiter per mutation-endpoint class, keyed at request time
// by authenticated user id or client IP.
type Limits struct {
	Add     *ratelimit.Limiter
	Update  *ratelimit.Limiter
	Reorder *ratelimit.Limiter
	Delete  *ratelimit.Limiter
	Advance *ratelimit.Limiter
	Join    *ratelimit.Limiter
	Create  *ratelimit.Limiter
}

// DefaultLimits are the server-side policies: the server limiter is the real
// security boundary, the client-side one is only a UX speed bump.
func DefaultLimits() *Limits {
	return &Limits{
		Add:     ratelimit.New(20, time.Minute),
		Update:  ratelimit.New(60, time.Minute),
		Reorder: ratelimit.New(30, time.Minute),
		Delete:  ratelimit.New(30, time.Minute),
		Advance: ratelimit.New(20, time.Minute),
		Join:    ratelimit.New(20, time.Minute),
		Create:  ratelimit.New(20, time.Minute),
	}
}

type Server struct {
	db        DB
	rdb       *redis.Client
	jwtSecret []byte
	limits    *Limits

	allowedOrigin string

	now func() time.Time
}

func NewServer(db DB, rdb *redis.Client, jwtSecret []byte, allowedOrigin string) *Server {
	return &Server{
		db:            db,
		rdb:           rdb,
		jwtSecret:     jwtSecret,
		limits:        DefaultLimits(),
		allowedOrigin: allowedOrigin,
		now:           time.Now,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/parties/{id}", s.handleGetParty)

	// Writes only: cross-origin mutations are rejected before anything else.
	r.Group(func(r chi.Router) {
		r.Use(s.requireSameOrigin)

		r.With(s.rateLimit(s.limits.Create)).Post("/parties", s.handleCreateParty)

		r.With(s.rateLimit(s.limits.Join)).Post("/parties/{id}/join", s.handleJoinParty)
		r.Post("/parties/{id}/leave", s.handleLeaveParty)

		r.With(s.rateLimit(s.limits.Add)).Post("/parties/{id}/items", s.handleAddItem)
		r.With(s.rateLimit(s.limits.Update)).Patch("/parties/{id}/items/{itemId}", s.handleUpdateItem)
		r.With(s.rateLimit(s.limits.Delete)).Delete("/parties/{id}/items/{itemId}", s.handleDeleteItem)
		r.With(s.rateLimit(s.limits.Reorder)).Post("/parties/{id}/items/reorder", s.handleReorderItems)
		r.With(s.rateLimit(s.limits.Advance)).Post("/parties/{id}/advance", s.handleAdvanceQueue)

		r.Post("/parties/{id}/invites", s.handleCreateInvite)
		r.Post("/parties/{id}/invites/accept", s.handleAcceptInvite)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "watchparty",
	})
}
