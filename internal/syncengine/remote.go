package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/neonwatty/linkparty-sub000/internal/party"
)

// Remote is the server mutation surface the engine calls after applying an
// optimistic change. Implementations must not retry automatically: an
// ambiguous-outcome write retried blindly can double-apply.
type Remote interface {
	AddItem(ctx context.Context, partyID string, req AddItemRequest) (party.QueueItem, error)
	UpdateItem(ctx context.Context, partyID, itemID string, req UpdateItemRequest) error
	DeleteItem(ctx context.Context, partyID, itemID, sessionID string) error
	Reorder(ctx context.Context, partyID, sessionID string, updates []party.PositionUpdate) error
	Advance(ctx context.Context, partyID, sessionID, showingItemID, firstPendingItemID string) error
	Leave(ctx context.Context, partyID, sessionID string) error
}

type AddItemRequest struct {
	SessionID   string  `json:"sessionId"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Position    float64 `json:"position"`
	AddedByName string  `json:"addedByName"`
	URL         string  `json:"url,omitempty"`
	Title       string  `json:"title,omitempty"`
	NoteContent string  `json:"noteContent,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
}

type UpdateItemRequest struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`

	Position          *float64   `json:"position,omitempty"`
	NoteContent       *string    `json:"noteContent,omitempty"`
	IsCompleted       *bool      `json:"isCompleted,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CompletedByUserID *string    `json:"completedByUserId,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
}

// RemoteError carries the server's stable (status, message) pair.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// HTTPRemote talks to the party service over its JSON mutation endpoints.
type HTTPRemote struct {
	BaseURL string
	Token   string // optional bearer access token
	Client  *http.Client
}

func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &RemoteError{Status: resp.StatusCode, Message: e.Error}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (r *HTTPRemote) AddItem(ctx context.Context, partyID string, req AddItemRequest) (party.QueueItem, error) {
	var resp struct {
		Item party.QueueItem `json:"item"`
	}
	err := r.do(ctx, http.MethodPost, "/parties/"+partyID+"/items", req, &resp)
	return resp.Item, err
}

func (r *HTTPRemote) UpdateItem(ctx context.Context, partyID, itemID string, req UpdateItemRequest) error {
	return r.do(ctx, http.MethodPatch, "/parties/"+partyID+"/items/"+itemID, req, nil)
}

func (r *HTTPRemote) DeleteItem(ctx context.Context, partyID, itemID, sessionID string) error {
	body := map[string]string{"sessionId": sessionID}
	return r.do(ctx, http.MethodDelete, "/parties/"+partyID+"/items/"+itemID, body, nil)
}

func (r *HTTPRemote) Reorder(ctx context.Context, partyID, sessionID string, updates []party.PositionUpdate) error {
	body := map[string]any{"sessionId": sessionID, "updates": updates}
	return r.do(ctx, http.MethodPost, "/parties/"+partyID+"/items/reorder", body, nil)
}

func (r *HTTPRemote) Advance(ctx context.Context, partyID, sessionID, showingItemID, firstPendingItemID string) error {
	body := map[string]string{
		"sessionId":          sessionID,
		"showingItemId":      showingItemID,
		"firstPendingItemId": firstPendingItemID,
	}
	return r.do(ctx, http.MethodPost, "/parties/"+partyID+"/advance", body, nil)
}

func (r *HTTPRemote) Leave(ctx context.Context, partyID, sessionID string) error {
	body := map[string]string{"sessionId": sessionID}
	return r.do(ctx, http.MethodPost, "/parties/"+partyID+"/leave", body, nil)
}
