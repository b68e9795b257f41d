// Package paho implements broker.Conn on top of the Eclipse Paho MQTT
// client. Messages are exchanged at QoS 1 with ordered delivery, so the
// handler of a subscription observes messages in broker order.
package paho

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/debug"
)

// Options tune the MQTT client. Zero values select the defaults below.
type Options struct {
	// QoS used for publish and subscribe. Default 1.
	QoS byte

	// KeepAlive interval. Default 30s.
	KeepAlive time.Duration

	// ConnectTimeout bounds the TCP and CONNECT handshake. Default 10s.
	ConnectTimeout time.Duration

	// AutoReconnect re-establishes lost connections and restores the
	// subscriptions made through this Conn.
	AutoReconnect bool

	// TLSConfig is used when the endpoint has TLS set.
	TLSConfig *tls.Config

	// JWT, when set, replaces the endpoint password with a signed token.
	JWT *JWTConfig
}

func (o Options) withDefaults() Options {
	if o.QoS == 0 {
		o.QoS = 1
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	return o
}

// Dialer connects to an MQTT broker.
type Dialer struct {
	opts Options
}

// Ensure Dialer implements broker.Dialer at compile time.
var _ broker.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer with the given options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{opts: opts.withDefaults()}
}

// Dial connects to the broker at ep. The context bounds the connect
// handshake only.
func (d *Dialer) Dial(ctx context.Context, ep broker.Endpoint) (broker.Conn, error) {
	c := &conn{
		qos:  d.opts.QoS,
		ep:   ep,
		subs: make(map[string]mqtt.MessageHandler),
	}

	password := ep.Password
	if d.opts.JWT != nil {
		token, err := d.opts.JWT.Sign(ep.ClientID, ep.Username)
		if err != nil {
			return nil, fmt.Errorf("signing broker credentials: %w", err)
		}
		password = token
	}

	o := mqtt.NewClientOptions().
		AddBroker(ep.URL()).
		SetClientID(ep.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetKeepAlive(d.opts.KeepAlive).
		SetConnectTimeout(d.opts.ConnectTimeout).
		SetAutoReconnect(d.opts.AutoReconnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("broker connection lost", "broker", ep.URL(), "client_id", ep.ClientID, "error", err)
		}).
		SetOnConnectHandler(c.onConnect)

	if ep.Username != "" {
		o.SetUsername(ep.Username)
	}
	if password != "" {
		o.SetPassword(password)
	}
	if ep.TLS {
		tlsCfg := d.opts.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		o.SetTLSConfig(tlsCfg)
	}
	if ep.Will != nil {
		o.SetBinaryWill(ep.Will.Topic, ep.Will.Payload, d.opts.QoS, ep.Will.Retained)
	}

	c.client = mqtt.NewClient(o)

	debug.Log("broker", "connecting", "broker", ep.URL(), "client_id", ep.ClientID)
	if err := wait(ctx, c.client.Connect()); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("connecting to %s: %w", ep.URL(), err)
	}
	return c, nil
}

type conn struct {
	client mqtt.Client
	qos    byte
	ep     broker.Endpoint

	mu        sync.Mutex
	subs      map[string]mqtt.MessageHandler
	connected bool
	closed    bool
}

// onConnect restores subscriptions after an automatic reconnect. The first
// connect has no subscriptions yet.
func (c *conn) onConnect(client mqtt.Client) {
	c.mu.Lock()
	reconnect := c.connected
	c.connected = true
	subs := make(map[string]mqtt.MessageHandler, len(c.subs))
	for f, h := range c.subs {
		subs[f] = h
	}
	c.mu.Unlock()

	if !reconnect || len(subs) == 0 {
		return
	}
	slog.Info("broker reconnected, restoring subscriptions", "client_id", c.ep.ClientID, "count", len(subs))
	// Waiting on a token inside a paho callback deadlocks, so restore
	// asynchronously.
	go func() {
		for f, h := range subs {
			tok := client.Subscribe(f, c.qos, h)
			if tok.WaitTimeout(10*time.Second) && tok.Error() != nil {
				slog.Warn("restoring subscription failed", "filter", f, "error", tok.Error())
			}
		}
	}()
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if c.isClosed() {
		return broker.ErrClosed
	}
	debug.Trace("broker", "publish", "topic", topic, "bytes", len(payload), "retained", retained)
	if err := wait(ctx, c.client.Publish(topic, c.qos, retained, payload)); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}

func (c *conn) Subscribe(ctx context.Context, filter string, handler broker.Handler) error {
	if err := broker.ValidateFilter(filter); err != nil {
		return err
	}
	if c.isClosed() {
		return broker.ErrClosed
	}

	h := func(_ mqtt.Client, m mqtt.Message) {
		handler(broker.Message{
			Topic:    m.Topic(),
			Payload:  m.Payload(),
			Retained: m.Retained(),
		})
	}
	if err := wait(ctx, c.client.Subscribe(filter, c.qos, h)); err != nil {
		return fmt.Errorf("subscribing to %q: %w", filter, err)
	}

	c.mu.Lock()
	c.subs[filter] = h
	c.mu.Unlock()
	debug.Log("broker", "subscribed", "filter", filter)
	return nil
}

func (c *conn) Unsubscribe(ctx context.Context, filters ...string) error {
	if c.isClosed() {
		return broker.ErrClosed
	}
	if len(filters) == 0 {
		return nil
	}

	c.mu.Lock()
	for _, f := range filters {
		delete(c.subs, f)
	}
	c.mu.Unlock()

	if err := wait(ctx, c.client.Unsubscribe(filters...)); err != nil {
		return fmt.Errorf("unsubscribing %v: %w", filters, err)
	}
	return nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subs = map[string]mqtt.MessageHandler{}
	c.mu.Unlock()

	// Disconnect waits up to the quiesce period (ms) for pending work.
	c.client.Disconnect(250)
	debug.Log("broker", "disconnected", "client_id", c.ep.ClientID)
	return nil
}

// wait blocks until tok completes or ctx is done.
func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
