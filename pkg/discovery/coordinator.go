package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/rhuss/sdvagent/pkg/debug"
)

// Coordinator aggregates initialization outcomes and signals completion
// once the number of records first reaches the target. It is the only
// writer of the record list.
type Coordinator struct {
	target int

	mu        sync.Mutex
	records   []Record
	names     map[string]bool
	completed bool
	abandoned bool
	done      chan struct{}
}

// NewCoordinator returns a coordinator for target outcomes. A target below
// one is complete from the start.
func NewCoordinator(target int) *Coordinator {
	c := &Coordinator{
		target: target,
		names:  make(map[string]bool),
		done:   make(chan struct{}),
	}
	if target < 1 {
		c.completed = true
		close(c.done)
	}
	return c
}

// Record appends an outcome and signals completion on the first crossing
// of the target. It returns false when the record was rejected: the name
// was already recorded or discovery was abandoned. Records arriving after
// completion are kept but never signal again.
func (c *Coordinator) Record(name string, success bool, payload any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		debug.Log("discovery", "outcome after abandon dropped", "server", name, "success", success)
		return false
	}
	if c.names[name] {
		debug.Log("discovery", "duplicate outcome dropped", "server", name)
		return false
	}
	c.names[name] = true
	c.records = append(c.records, Record{ServerName: name, Success: success, Payload: payload})

	if !c.completed && len(c.records) >= c.target {
		c.completed = true
		close(c.done)
		debug.Log("discovery", "target reached", "target", c.target)
	}
	return true
}

// Recorded reports whether an outcome for name exists.
func (c *Coordinator) Recorded(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[name]
}

// Abandon stops accepting records. It reports false when completion had
// already been signaled, in which case nothing changes.
func (c *Coordinator) Abandon() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed {
		return false
	}
	c.abandoned = true
	return true
}

// Finished reports whether discovery completed or was abandoned.
func (c *Coordinator) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed || c.abandoned
}

// Done is closed when the target is reached.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Records returns a snapshot of the records in completion order.
func (c *Coordinator) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// AwaitCompletion blocks until the target is reached, the timeout elapses
// or ctx is done. On timeout discovery is abandoned and the partial records
// are returned with a *TimeoutError. A zero timeout waits for ctx only.
func (c *Coordinator) AwaitCompletion(ctx context.Context, timeout time.Duration) ([]Record, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-c.done:
		return c.Records(), nil
	case <-expired:
		if !c.Abandon() {
			return c.Records(), nil
		}
		records := c.Records()
		return records, &TimeoutError{Target: c.target, Timeout: timeout, Records: records}
	case <-ctx.Done():
		if !c.Abandon() {
			return c.Records(), nil
		}
		return c.Records(), ctx.Err()
	}
}
