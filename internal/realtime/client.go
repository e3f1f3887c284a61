package realtime

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Client maintains one websocket subscription to the chat event bus. Events
// arrive on a single channel so the consumer preserves delivery order; emits
// are serialized by a mutex because gorilla connections allow only one
// concurrent writer.
type Client struct {
	conn   *websocket.Conn
	events chan Event

	writeMu sync.Mutex
	once    sync.Once
}

const eventBuffer = 64

// Dial connects to the bus at the given HTTP base URL, authenticating with
// the bearer token, and starts the read loop.
func Dial(ctx context.Context, base, token string) (*Client, error) {
	wsURL, err := socketURL(base, token)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:   conn,
		events: make(chan Event, eventBuffer),
	}
	go c.readLoop()
	return c, nil
}

func socketURL(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/socket"
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Events exposes the inbound event stream. The channel closes when the
// connection drops or Close is called.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Emit sends one event to the bus. Failures are logged only; a dropped
// typing or join event degrades the feature, never the client.
func (c *Client) Emit(name string, payload interface{}) {
	evt := NewEvent(name, payload)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(evt); err != nil {
		log.Printf("realtime emit %s: %v", name, err)
	}
}

// Close tears down the connection; the events channel closes once the read
// loop observes it.
func (c *Client) Close() {
	c.once.Do(func() {
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var evt Event
		if err := c.conn.ReadJSON(&evt); err != nil {
			c.Close()
			return
		}
		if evt.Name == "" {
			continue
		}
		select {
		case c.events <- evt:
		default:
			// A consumer this far behind is stalled; dropping beats
			// blocking the read loop.
			log.Printf("realtime: dropping %s event, consumer backlogged", evt.Name)
		}
	}
}
