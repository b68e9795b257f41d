package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrToolNotFound is returned by Session.CallTool for a tool the server
// does not list.
var ErrToolNotFound = errors.New("tool not found")

// ConnectError reports that the broker could not be reached. It is not
// retried.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to broker %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError reports that fewer than Target servers produced an outcome
// within Timeout. Records holds what was collected so far, possibly
// nothing.
type TimeoutError struct {
	Target  int
	Timeout time.Duration
	Records []Record
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("discovery timed out after %s: %d of %d servers", e.Timeout, len(e.Records), e.Target)
}

// Unwrap makes errors.Is(err, context.DeadlineExceeded) hold.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// InitializationError reports servers whose initialize handshake failed.
type InitializationError struct {
	Failed  []string
	Records []Record
}

func (e *InitializationError) Error() string {
	var causes []string
	for _, r := range e.Records {
		if r.Success {
			continue
		}
		if err, ok := r.Payload.(error); ok {
			causes = append(causes, fmt.Sprintf("%s: %v", r.ServerName, err))
		} else {
			causes = append(causes, r.ServerName)
		}
	}
	return fmt.Sprintf("initializing %d server(s) failed: %s", len(e.Failed), strings.Join(causes, "; "))
}

// TransportError wraps a failure to exchange a request with a server.
type TransportError struct {
	Server string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Server, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteToolError reports a tool call the server answered with an error
// result or rejected with a JSON-RPC error. Code is zero for error results.
type RemoteToolError struct {
	Server  string
	Tool    string
	Code    int64
	Message string
}

func (e *RemoteToolError) Error() string {
	return fmt.Sprintf("tool %s on %s failed: %s", e.Tool, e.Server, e.Message)
}
