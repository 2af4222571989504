// Package ws provides a SockJS client over the websocket transport.
package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/omochice/sockjs-server/internal/client"
	"github.com/omochice/sockjs-server/pkg/protocol"
	"nhooyr.io/websocket"
)

const readLimit = 4 << 20

// Client represents a SockJS websocket client.
type Client struct {
	*client.Stream

	url    string
	conn   *websocket.Conn
	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ client.Client = (*Client)(nil)

// New creates a client for the SockJS endpoint at base, for example
// "http://localhost:8080/echo". A fresh session id is picked for it.
func New(base string) *Client {
	url := client.SessionURL(base) + "/websocket"
	url = strings.Replace(url, "http", "ws", 1)
	return &Client{
		Stream: client.NewStream(64),
		url:    url,
	}
}

// URL returns the websocket URL of the session.
func (c *Client) URL() string {
	return c.url
}

// Connect dials the server and waits for the open frame.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	conn.SetReadLimit(readLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveFrames(readCtx, conn)

	if err := c.WaitOpen(ctx); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Send sends messages as one JSON array.
func (c *Client) Send(messages ...string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return client.ErrNotConnected
	}
	if err := conn.Write(context.Background(), websocket.MessageText, []byte(protocol.EncodeMessages(messages))); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "")
		cancel()
	}
	c.wg.Wait()
	c.Finish(nil)
	return err
}

func (c *Client) receiveFrames(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.Finish(readError(err))
			return
		}
		if err := c.Handle(data); err != nil {
			// After a close frame keep reading until the server closes the
			// connection.
			var closeErr *client.CloseError
			if errors.As(err, &closeErr) {
				continue
			}
			c.Finish(err)
			return
		}
	}
}

// readError hides the error of a connection closed on purpose.
func readError(err error) error {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
