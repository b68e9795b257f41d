package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/mqttmcp"
	"github.com/rhuss/sdvagent/pkg/observability"
)

// Listener watches presence announcements for server names matching a
// filter and reports each distinct name once while discovery is open.
type Listener struct {
	conn   broker.Conn
	filter string

	// onDiscovered is called with the listener lock held and must not block.
	onDiscovered func(name string)
	// finished reports whether discovery no longer accepts new servers.
	finished func() bool

	mu         sync.Mutex
	seen       map[string]bool
	subscribed bool
	stopped    bool
}

// NewListener validates filter (a server name filter such as "sdv/#") and
// returns a listener that has not subscribed yet. finished may be nil.
func NewListener(conn broker.Conn, filter string, onDiscovered func(string), finished func() bool) (*Listener, error) {
	if onDiscovered == nil {
		return nil, errors.New("listener needs a discovery callback")
	}
	if err := broker.ValidateFilter(mqttmcp.PresenceFilter(filter)); err != nil {
		return nil, fmt.Errorf("invalid discovery filter %q: %w", filter, err)
	}
	if finished == nil {
		finished = func() bool { return false }
	}
	return &Listener{
		conn:         conn,
		filter:       filter,
		onDiscovered: onDiscovered,
		finished:     finished,
		seen:         make(map[string]bool),
	}, nil
}

// Start subscribes to the presence topics. Retained announcements already
// held by the broker are delivered right away.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped || l.subscribed {
		l.mu.Unlock()
		return nil
	}
	l.subscribed = true
	l.mu.Unlock()

	if err := l.conn.Subscribe(ctx, mqttmcp.PresenceFilter(l.filter), l.handle); err != nil {
		return fmt.Errorf("subscribing to presence %q: %w", l.filter, err)
	}
	debug.Log("discovery", "listening for tool servers", "filter", l.filter)
	return nil
}

// Stop cancels the presence subscription. New announcements are ignored
// afterwards. It is safe to call more than once.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	subscribed := l.subscribed
	l.mu.Unlock()

	if !subscribed {
		return nil
	}
	err := l.conn.Unsubscribe(ctx, mqttmcp.PresenceFilter(l.filter))
	if err != nil && !errors.Is(err, broker.ErrClosed) {
		return fmt.Errorf("unsubscribing presence %q: %w", l.filter, err)
	}
	return nil
}

// Seen returns the number of distinct servers reported so far.
func (l *Listener) Seen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

func (l *Listener) handle(m broker.Message) {
	name, ok := mqttmcp.ServerNameFromPresence(m.Topic)
	if !ok || !broker.Match(l.filter, name) {
		return
	}

	if len(m.Payload) == 0 {
		observability.DiscoveryAnnouncementsTotal.WithLabelValues("withdrawn").Inc()
		debug.Log("discovery", "tool server withdrawn", "server", name)
		return
	}
	p, err := mqttmcp.ParsePresence(m.Payload)
	if err != nil {
		observability.DiscoveryAnnouncementsTotal.WithLabelValues("malformed").Inc()
		slog.Warn("dropping malformed announcement", "topic", m.Topic, "error", err)
		return
	}
	if p.ServerName != "" && p.ServerName != name {
		slog.Warn("announcement name differs from topic, using topic", "topic_name", name, "payload_name", p.ServerName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.stopped || l.finished():
		observability.DiscoveryAnnouncementsTotal.WithLabelValues("ignored").Inc()
		debug.Log("discovery", "announcement after discovery finished", "server", name)
	case l.seen[name]:
		observability.DiscoveryAnnouncementsTotal.WithLabelValues("duplicate").Inc()
		debug.Log("discovery", "duplicate announcement", "server", name)
	default:
		l.seen[name] = true
		observability.DiscoveryAnnouncementsTotal.WithLabelValues("accepted").Inc()
		slog.Info("tool server discovered", "server", name, "server_id", p.ServerID, "version", p.Version, "retained", m.Retained)
		l.onDiscovered(name)
	}
}
