package party

import (
	"time"
)

// Party is one watch-party room. Parties are ephemeral: everything hanging
// off a party is dropped once ExpiresAt passes.
type Party struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	HostSessionID string    `json:"hostSessionId"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Member is a participant seat in a party, keyed by session id. UserID is
// set only for authenticated callers.
type Member struct {
	PartyID   string    `json:"partyId"`
	SessionID string    `json:"sessionId"`
	UserID    *string   `json:"userId,omitempty"`
	Name      string    `json:"name"`
	IsHost    bool      `json:"isHost"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// QueueItem is one entry in a party's shared queue. Items are ordered by
// Position (float so a client can insert between neighbours without
// renumbering, e.g. showing+0.5).
type QueueItem struct {
	ID         string  `json:"id"`
	PartyID    string  `json:"partyId"`
	Position   float64 `json:"position"`
	Status     string  `json:"status"` // "pending", "showing", "shown"
	Type       string  `json:"type"`   // "link", "tweet", "reddit", "note", "image"

	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	NoteContent string `json:"noteContent,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`

	IsCompleted       bool       `json:"isCompleted"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CompletedByUserID *string    `json:"completedByUserId,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`

	AddedBySessionID string    `json:"addedBySessionId"`
	AddedByName      string    `json:"addedByName"`
	CreatedAt        time.Time `json:"createdAt"`
	// UpdatedAt is server-assigned; zero until the row has round-tripped.
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

const (
	StatusPending = "pending"
	StatusShowing = "showing"
	StatusShown   = "shown"
)

const (
	TypeLink   = "link"
	TypeTweet  = "tweet"
	TypeReddit = "reddit"
	TypeNote   = "note"
	TypeImage  = "image"
)

// Expired reports whether the party is past its TTL at now.
func (p *Party) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

func validStatus(s string) bool {
	return s == StatusPending || s == StatusShowing || s == StatusShown
}

func validType(t string) bool {
	switch t {
	case TypeLink, TypeTweet, TypeReddit, TypeNote, TypeImage:
		return true
	}
	return false
}
