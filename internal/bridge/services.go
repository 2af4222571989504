package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ServeEcho answers every message sent to address on its reply address
// with the same body and headers.
func ServeEcho(bus Bus, address string) (Subscription, error) {
	sub, err := bus.Subscribe(address, func(msg Message) {
		if msg.ReplyAddress == "" {
			return
		}
		bus.Send(msg.ReplyAddress, Message{Headers: msg.Headers, Body: msg.Body})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serve echo on %s: %w", address, err)
	}
	return sub, nil
}

// PublishTime publishes the current time on address every interval until
// ctx is done.
func PublishTime(ctx context.Context, bus Bus, address string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			body, _ := json.Marshal(map[string]any{
				"time":   now.UTC().Format(time.RFC3339),
				"millis": now.UnixMilli(),
			})
			bus.Publish(address, Message{Body: body})
		}
	}
}
