package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/sdvagent/pkg/broker"
)

// collector gathers delivered messages for assertions.
type collector struct {
	mu   sync.Mutex
	msgs []broker.Message
	ch   chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 100)}
}

func (c *collector) handle(m broker.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []broker.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages, got %d", n, i)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broker.Message(nil), c.msgs...)
}

func dial(t *testing.T, b *Broker, id string) broker.Conn {
	t.Helper()
	c, err := b.Dial(context.Background(), broker.Endpoint{ClientID: id})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := New()
	pub := dial(t, b, "pub")
	sub := dial(t, b, "sub")

	col := newCollector()
	if err := sub.Subscribe(ctx, "sdv/#", col.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, topic := range []string{"sdv/a", "other/b", "sdv/c/d"} {
		if err := pub.Publish(ctx, topic, []byte(topic), false); err != nil {
			t.Fatalf("Publish(%s): %v", topic, err)
		}
	}

	msgs := col.wait(t, 2)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Topic != "sdv/a" || msgs[1].Topic != "sdv/c/d" {
		t.Errorf("topics = %q, %q; want sdv/a, sdv/c/d", msgs[0].Topic, msgs[1].Topic)
	}
}

func TestRetainedDeliveredOnSubscribe(t *testing.T) {
	ctx := context.Background()
	b := New()
	pub := dial(t, b, "pub")

	if err := pub.Publish(ctx, "presence/x", []byte("online"), true); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sub := dial(t, b, "sub")
	col := newCollector()
	if err := sub.Subscribe(ctx, "presence/+", col.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	msgs := col.wait(t, 1)
	if !msgs[0].Retained {
		t.Error("expected retained flag on replayed message")
	}
	if string(msgs[0].Payload) != "online" {
		t.Errorf("payload = %q, want %q", msgs[0].Payload, "online")
	}

	// Empty retained payload clears the topic.
	if err := pub.Publish(ctx, "presence/x", nil, true); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	col.wait(t, 1)
	if _, ok := b.Retained("presence/x"); ok {
		t.Error("retained message should have been cleared")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	b := New()
	pub := dial(t, b, "pub")
	sub := dial(t, b, "sub")

	col := newCollector()
	if err := sub.Subscribe(ctx, "t", col.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := pub.Publish(ctx, "t", []byte("1"), false); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	col.wait(t, 1)

	if err := sub.Unsubscribe(ctx, "t"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := pub.Publish(ctx, "t", []byte("2"), false); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-col.ch:
		t.Error("received message after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := New()
	c, err := b.Dial(ctx, broker.Endpoint{ClientID: "c"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if b.Connections() != 0 {
		t.Errorf("Connections() = %d, want 0", b.Connections())
	}
	if err := c.Publish(ctx, "t", nil, false); !errors.Is(err, broker.ErrClosed) {
		t.Errorf("Publish after Close error = %v, want ErrClosed", err)
	}
	if err := c.Subscribe(ctx, "t", func(broker.Message) {}); !errors.Is(err, broker.ErrClosed) {
		t.Errorf("Subscribe after Close error = %v, want ErrClosed", err)
	}
}

func TestKillPublishesWill(t *testing.T) {
	ctx := context.Background()
	b := New()

	server, err := b.Dial(ctx, broker.Endpoint{
		ClientID: "server-1",
		Will:     &broker.Will{Topic: "presence/server", Retained: true},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := server.Publish(ctx, "presence/server", []byte("online"), true); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if !b.Kill("server-1") {
		t.Fatal("Kill returned false")
	}
	if _, ok := b.Retained("presence/server"); ok {
		t.Error("will should have cleared the retained presence")
	}
	if err := server.Publish(ctx, "x", nil, false); !errors.Is(err, broker.ErrClosed) {
		t.Errorf("Publish on killed conn error = %v, want ErrClosed", err)
	}
}

func TestPublishRejectsWildcards(t *testing.T) {
	b := New()
	c := dial(t, b, "c")
	if err := c.Publish(context.Background(), "sdv/#", nil, false); err == nil {
		t.Error("expected error for wildcard publish topic")
	}
}
