// Package xhr provides a SockJS client over the xhr polling transport.
package xhr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/omochice/sockjs-server/internal/client"
	"github.com/omochice/sockjs-server/pkg/protocol"
)

// Client represents a SockJS xhr polling client.
type Client struct {
	*client.Stream

	url    string
	http   *http.Client
	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ client.Client = (*Client)(nil)

// New creates a client for the SockJS endpoint at base, for example
// "http://localhost:8080/echo". A fresh session id is picked for it.
func New(base string) *Client {
	return &Client{
		Stream: client.NewStream(64),
		url:    client.SessionURL(base),
		http:   &http.Client{},
	}
}

// URL returns the session URL the transport paths are appended to.
func (c *Client) URL() string {
	return c.url
}

// Connect starts polling and waits for the open frame.
func (c *Client) Connect(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.poll(pollCtx)

	if err := c.WaitOpen(ctx); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Send posts messages as one JSON array.
func (c *Client) Send(messages ...string) error {
	c.mu.RLock()
	connected := c.cancel != nil
	c.mu.RUnlock()
	if !connected {
		return client.ErrNotConnected
	}

	body := strings.NewReader(protocol.EncodeMessages(messages))
	resp, err := c.http.Post(c.url+"/xhr_send", "text/plain; charset=UTF-8", body)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to send message: %s %s", resp.Status, msg)
	}
	return nil
}

// Close stops polling.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.Finish(nil)
	return nil
}

func (c *Client) poll(ctx context.Context) {
	defer c.wg.Done()

	for {
		if err := c.pollOnce(ctx); err != nil {
			var closeErr *client.CloseError
			if errors.Is(err, context.Canceled) || errors.As(err, &closeErr) {
				return
			}
			c.Finish(err)
			return
		}
	}
}

// pollOnce makes one xhr request and handles the frames in its response.
func (c *Client) pollOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/xhr", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll failed: %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := c.Handle(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
