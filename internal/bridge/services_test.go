package bridge_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/omochice/sockjs-server/internal/bridge"
)

func TestServeEcho(t *testing.T) {
	bus := bridge.NewLocalBus()
	sub, err := bridge.ServeEcho(bus, "echo")
	if err != nil {
		t.Fatalf("ServeEcho() error = %v", err)
	}
	defer sub.Unsubscribe()

	var reply bridge.Message
	bus.Subscribe("me", func(msg bridge.Message) { reply = msg })

	bus.Send("echo", bridge.Message{ReplyAddress: "me", Body: json.RawMessage(`"ping"`)})
	if string(reply.Body) != `"ping"` || reply.Address != "me" {
		t.Errorf("reply = %+v", reply)
	}

	// Without a reply address nothing is answered.
	if err := bus.Send("echo", bridge.Message{Body: json.RawMessage(`"x"`)}); err != nil {
		t.Errorf("Send() error = %v", err)
	}
}

func TestPublishTime(t *testing.T) {
	bus := bridge.NewLocalBus()
	got := make(chan bridge.Message, 10)
	bus.Subscribe("time", func(msg bridge.Message) {
		select {
		case got <- msg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bridge.PublishTime(ctx, bus, "time", 10*time.Millisecond)
		close(done)
	}()

	select {
	case msg := <-got:
		var body struct {
			Time   string `json:"time"`
			Millis int64  `json:"millis"`
		}
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			t.Fatalf("Failed to decode body %s: %v", msg.Body, err)
		}
		if _, err := time.Parse(time.RFC3339, body.Time); err != nil {
			t.Errorf("time field: %v", err)
		}
		if body.Millis == 0 {
			t.Error("millis field missing")
		}
	case <-time.After(time.Second):
		t.Fatal("no time published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishTime did not return after cancel")
	}
}
