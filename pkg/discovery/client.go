package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/observability"
)

// Defaults applied by Connect.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultInitTimeout = 10 * time.Second
	DefaultClientName  = "sdvagent"
)

// Options configure a discovery run.
type Options struct {
	// Endpoint is the broker to connect to. A random client id is used
	// when Endpoint.ClientID is empty.
	Endpoint broker.Endpoint

	// Filter selects server names, e.g. "sdv/#".
	Filter string

	// TargetCount is the number of server outcomes to wait for.
	TargetCount int

	// Timeout bounds the whole discovery wait.
	Timeout time.Duration

	// InitTimeout bounds each initialize handshake.
	InitTimeout time.Duration

	// ClientName and ClientVersion are announced in the handshake.
	ClientName    string
	ClientVersion string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = DefaultInitTimeout
	}
	if o.ClientName == "" {
		o.ClientName = DefaultClientName
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "dev"
	}
	if o.Endpoint.ClientID == "" {
		o.Endpoint.ClientID = o.ClientName + "-" + uuid.NewString()
	}
	return o
}

// Client owns the broker connection of a discovery run and the sessions
// acquired through it.
type Client struct {
	conn     broker.Conn
	coord    *Coordinator
	listener *Listener
	init     *Initializer
	registry *Registry

	// initCtx bounds in-flight handshakes; cancelled by Close.
	initCtx    context.Context
	cancelInit context.CancelFunc
	inflight   sync.WaitGroup

	mu     sync.Mutex
	live   map[string]*mcp.ClientSession
	built  bool
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Connect opens the broker connection, discovers servers until
// TargetCount outcomes are recorded and returns a client holding a session
// per successful server.
//
// It fails with *ConnectError when the broker is unreachable, with
// *TimeoutError when the target is not reached within Timeout, and with
// *InitializationError when any recorded server failed to initialize. On
// every error the broker connection is closed.
func Connect(ctx context.Context, dialer broker.Dialer, opts Options) (*Client, error) {
	if opts.TargetCount < 1 {
		return nil, fmt.Errorf("target count must be at least 1, got %d", opts.TargetCount)
	}
	opts = opts.withDefaults()

	conn, err := dialer.Dial(ctx, opts.Endpoint)
	if err != nil {
		observability.DiscoveryRunsTotal.WithLabelValues("connect_error").Inc()
		return nil, &ConnectError{Address: opts.Endpoint.Address(), Err: err}
	}

	initCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Client{
		conn:  conn,
		coord: NewCoordinator(opts.TargetCount),
		init: &Initializer{
			ClientID:       opts.Endpoint.ClientID,
			Implementation: &mcp.Implementation{Name: opts.ClientName, Version: opts.ClientVersion},
			Timeout:        opts.InitTimeout,
		},
		initCtx:    initCtx,
		cancelInit: cancel,
		live:       make(map[string]*mcp.ClientSession),
	}

	c.listener, err = NewListener(conn, opts.Filter, c.onDiscovered, c.coord.Finished)
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := c.listener.Start(ctx); err != nil {
		c.Close()
		return nil, err
	}
	slog.Info("discovering tool servers",
		"broker", opts.Endpoint.Address(),
		"filter", opts.Filter,
		"target", opts.TargetCount,
		"timeout", opts.Timeout)

	records, waitErr := c.coord.AwaitCompletion(ctx, opts.Timeout)

	// Discovery is over either way; stop watching for new servers.
	if err := c.listener.Stop(ctx); err != nil {
		slog.Warn("stopping discovery listener failed", "error", err)
	}

	if waitErr != nil {
		var te *TimeoutError
		if errors.As(waitErr, &te) {
			observability.DiscoveryRunsTotal.WithLabelValues("timeout").Inc()
			slog.Warn("discovery timed out", "collected", len(records), "target", opts.TargetCount)
		} else {
			observability.DiscoveryRunsTotal.WithLabelValues("cancelled").Inc()
		}
		c.Close()
		return nil, waitErr
	}

	if failed := failedNames(records); len(failed) > 0 {
		observability.DiscoveryRunsTotal.WithLabelValues("init_failed").Inc()
		c.Close()
		return nil, &InitializationError{Failed: failed, Records: records}
	}

	c.build(records)
	observability.DiscoveryRunsTotal.WithLabelValues("completed").Inc()
	slog.Info("discovery complete", "servers", c.registry.Names())
	return c, nil
}

// build turns the completed records into the registry. Sessions that
// finished after the snapshot are closed.
func (c *Client) build(records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry = BuildSessions(records, c.live)
	c.built = true
	for name, cs := range c.live {
		if _, ok := c.registry.Get(name); !ok {
			debug.Log("discovery", "closing late session", "server", name)
			_ = cs.Close()
			delete(c.live, name)
		}
	}
}

// onDiscovered runs under the listener lock, so it only starts the
// handshake.
func (c *Client) onDiscovered(name string) {
	c.init.Discovered(name)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.onInitialized(c.init.Initialize(c.initCtx, c.conn, name))
	}()
}

func (c *Client) onInitialized(out Outcome) {
	// The session is stored before the record so that a completion
	// triggered by this record always finds it.
	if out.Session != nil {
		c.mu.Lock()
		if c.closed || c.built {
			c.mu.Unlock()
			debug.Log("discovery", "closing session after discovery ended", "server", out.ServerName)
			_ = out.Session.Close()
			out.Session = nil
		} else {
			c.live[out.ServerName] = out.Session
			c.mu.Unlock()
		}
	}

	if c.coord.Record(out.ServerName, out.Success, out.Payload) || out.Session == nil {
		return
	}

	c.mu.Lock()
	if c.live[out.ServerName] == out.Session {
		delete(c.live, out.ServerName)
	}
	c.mu.Unlock()
	_ = out.Session.Close()
}

// Sessions returns the acquired sessions keyed by server name.
func (c *Client) Sessions() map[string]*Session {
	return c.registry.Sessions()
}

// Registry returns the session registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Records returns every recorded outcome, including late ones.
func (c *Client) Records() []Record {
	return c.coord.Records()
}

// State returns the lifecycle state of a server in this run.
func (c *Client) State(name string) State {
	return c.init.State(name)
}

// Close ends all sessions, then the broker connection. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if c.listener != nil {
			_ = c.listener.Stop(ctx)
		}
		c.coord.Abandon()

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancelInit()
		c.inflight.Wait()

		c.mu.Lock()
		live := c.live
		c.live = map[string]*mcp.ClientSession{}
		c.mu.Unlock()
		for name, cs := range live {
			if err := cs.Close(); err != nil {
				debug.Log("discovery", "closing session failed", "server", name, "error", err)
			}
		}

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
