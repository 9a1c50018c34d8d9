package syncengine

import (
	"context"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
)

// Feed is one realtime subscription: a websocket attached to a single
// party's change feed. Frames are delivered over Events(); the owner loop
// reads them and hands each to Engine.HandleFeed, keeping all engine state on
// one goroutine.
type Feed struct {
	conn   *websocket.Conn
	events chan []byte
	done   chan struct{}
}

// OpenFeed dials the realtime endpoint for partyID. One feed per (party)
// subscription; switching parties means closing this feed and opening a new
// one.
func OpenFeed(ctx context.Context, baseURL, partyID string) (*Feed, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/realtime/ws"
	q := u.Query()
	q.Set("partyId", partyID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	f := &Feed{
		conn:   conn,
		events: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go f.readLoop()
	return f, nil
}

// Events is the stream of raw feed frames.
func (f *Feed) Events() <-chan []byte { return f.events }

// Done closes when the connection drops.
func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) Close() error {
	return f.conn.Close()
}

func (f *Feed) readLoop() {
	defer func() {
		close(f.events)
		close(f.done)
	}()
	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("watchparty client: feed read: %v", err)
			}
			return
		}
		select {
		case f.events <- data:
		default:
			// The owner loop is too far behind; drop the frame rather than
			// block the read pump. The next snapshot fetch resyncs.
		}
	}
}
