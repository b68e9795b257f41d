// Package memory provides an in-process broker.Conn implementation for
// tests and single-process demos. It keeps retained messages, supports MQTT
// wildcard filters and delivers messages asynchronously in publish order
// per subscription, which mirrors what a real MQTT client library does.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rhuss/sdvagent/pkg/broker"
)

// Broker is an in-process message broker. The zero value is not usable;
// call New.
type Broker struct {
	mu       sync.Mutex
	retained map[string][]byte
	conns    map[*conn]struct{}
}

// Ensure Broker implements broker.Dialer at compile time.
var _ broker.Dialer = (*Broker)(nil)

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		retained: make(map[string][]byte),
		conns:    make(map[*conn]struct{}),
	}
}

// Dial opens a connection to the broker. The endpoint host and port are
// ignored; the client id is kept for Kill.
func (b *Broker) Dial(ctx context.Context, ep broker.Endpoint) (broker.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &conn{
		b:    b,
		ep:   ep,
		subs: make(map[string]*subscription),
	}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()
	return c, nil
}

// Retained returns the retained payload for topic, if any.
func (b *Broker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.retained[topic]
	return p, ok
}

// Connections returns the number of open connections.
func (b *Broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Kill drops every connection with the given client id as if the network
// failed, publishing its last will. It reports whether a connection was found.
func (b *Broker) Kill(clientID string) bool {
	b.mu.Lock()
	var victims []*conn
	for c := range b.conns {
		if c.ep.ClientID == clientID {
			victims = append(victims, c)
		}
	}
	b.mu.Unlock()

	for _, c := range victims {
		will := c.ep.Will
		c.shutdown()
		if will != nil {
			b.publish(will.Topic, will.Payload, will.Retained)
		}
	}
	return len(victims) > 0
}

// publish stores retained payloads and fans the message out to every
// matching subscription. An empty retained payload clears the topic.
func (b *Broker) publish(topic string, payload []byte, retained bool) {
	data := append([]byte(nil), payload...)

	b.mu.Lock()
	if retained {
		if len(data) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = data
		}
	}
	var targets []*subscription
	for c := range b.conns {
		c.mu.Lock()
		for _, s := range c.subs {
			if broker.Match(s.filter, topic) {
				targets = append(targets, s)
			}
		}
		c.mu.Unlock()
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.enqueue(broker.Message{Topic: topic, Payload: data})
	}
}

type conn struct {
	b  *Broker
	ep broker.Endpoint

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return broker.ErrClosed
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("publish topic %q must not contain wildcards", topic)
	}
	c.b.publish(topic, payload, retained)
	return nil
}

func (c *conn) Subscribe(ctx context.Context, filter string, handler broker.Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := broker.ValidateFilter(filter); err != nil {
		return err
	}

	s := newSubscription(filter, handler)

	c.b.mu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.b.mu.Unlock()
		return broker.ErrClosed
	}
	if old, ok := c.subs[filter]; ok {
		old.stop()
	}
	c.subs[filter] = s
	c.mu.Unlock()

	// Retained messages are queued while the broker lock is held so that
	// no live publish can overtake them.
	for topic, payload := range c.b.retained {
		if broker.Match(filter, topic) {
			s.enqueue(broker.Message{Topic: topic, Payload: payload, Retained: true})
		}
	}
	c.b.mu.Unlock()

	go s.run()
	return nil
}

func (c *conn) Unsubscribe(ctx context.Context, filters ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return broker.ErrClosed
	}
	for _, f := range filters {
		if s, ok := c.subs[f]; ok {
			s.stop()
			delete(c.subs, f)
		}
	}
	return nil
}

func (c *conn) Close() error {
	c.shutdown()
	return nil
}

func (c *conn) shutdown() {
	c.b.mu.Lock()
	delete(c.b.conns, c)
	c.b.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for f, s := range c.subs {
		s.stop()
		delete(c.subs, f)
	}
}

// subscription is a mailbox with a single delivery goroutine.
type subscription struct {
	filter  string
	handler broker.Handler

	mu    sync.Mutex
	queue []broker.Message

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscription(filter string, handler broker.Handler) *subscription {
	return &subscription{
		filter:  filter,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscription) enqueue(m broker.Message) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			m := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.handler(m)
		}
	}
}
