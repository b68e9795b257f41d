// Package broker defines the publish/subscribe connection used by the MCP
// discovery client and the tool servers. Implementations live in
// subpackages: paho (a real MQTT broker) and memory (in-process, for tests
// and local demos).
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("broker connection closed")

// Message is a single message delivered by the broker.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Handler receives messages for a subscription. Handlers are invoked
// sequentially per subscription and must not block for long.
type Handler func(Message)

// Will is the last-will message the broker publishes when the client
// disconnects without a clean close.
type Will struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Endpoint identifies a broker and the client identity used on it.
type Endpoint struct {
	Host     string
	Port     int
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// TLS switches the scheme from tcp to ssl.
	TLS bool

	// Will is installed at connect time when set.
	Will *Will
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the broker URL in the form understood by MQTT clients.
func (e Endpoint) URL() string {
	scheme := "tcp"
	if e.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, e.Address())
}

// Conn is a live broker connection.
//
// Implementations must be safe for concurrent use. Close is idempotent and
// releases every subscription.
type Conn interface {
	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error

	// Subscribe registers handler for every message matching filter,
	// including retained messages already held by the broker.
	Subscribe(ctx context.Context, filter string, handler Handler) error

	// Unsubscribe removes the subscriptions for the given filters.
	Unsubscribe(ctx context.Context, filters ...string) error

	// Close disconnects from the broker.
	Close() error
}

// Dialer opens broker connections.
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, ep Endpoint) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	return f(ctx, ep)
}
