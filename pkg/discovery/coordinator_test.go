package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func signaled(c *Coordinator) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func TestCoordinatorSignalsAtTarget(t *testing.T) {
	c := NewCoordinator(3)

	c.Record("a", true, nil)
	c.Record("b", false, errors.New("boom"))
	if signaled(c) {
		t.Fatal("signaled before target")
	}

	c.Record("c", true, nil)
	if !signaled(c) {
		t.Fatal("not signaled at target")
	}

	// Records after completion are kept but must not resignal (a second
	// close would panic).
	if !c.Record("d", true, nil) {
		t.Error("record after completion should be accepted")
	}
	if got := len(c.Records()); got != 4 {
		t.Errorf("len(Records) = %d, want 4", got)
	}
}

func TestCoordinatorRejectsDuplicates(t *testing.T) {
	c := NewCoordinator(2)
	if !c.Record("vehicle", true, nil) {
		t.Fatal("first record rejected")
	}
	if c.Record("vehicle", false, nil) {
		t.Error("duplicate record accepted")
	}
	if signaled(c) {
		t.Error("duplicate counted toward target")
	}
	if !c.Recorded("vehicle") || c.Recorded("weather") {
		t.Error("Recorded reports wrong names")
	}
}

func TestCoordinatorCompletionOrder(t *testing.T) {
	c := NewCoordinator(3)
	for _, n := range []string{"weather", "vehicle", "map"} {
		c.Record(n, true, nil)
	}
	var got []string
	for _, r := range c.Records() {
		got = append(got, r.ServerName)
	}
	if fmt.Sprint(got) != "[weather vehicle map]" {
		t.Errorf("order = %v, want completion order", got)
	}
}

func TestCoordinatorConcurrentRecords(t *testing.T) {
	const n = 50
	c := NewCoordinator(n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("server-%d", i%(n/2))
			c.Record(name, true, nil)
			c.Record(fmt.Sprintf("server-%d", i), true, nil)
		}(i)
	}
	wg.Wait()

	if !signaled(c) {
		t.Fatal("target not reached")
	}
	seen := map[string]int{}
	for _, r := range c.Records() {
		seen[r.ServerName]++
	}
	if len(seen) != n {
		t.Errorf("distinct names = %d, want %d", len(seen), n)
	}
	for name, count := range seen {
		if count != 1 {
			t.Errorf("%s recorded %d times", name, count)
		}
	}
}

func TestCoordinatorAwaitTimeout(t *testing.T) {
	c := NewCoordinator(2)
	c.Record("vehicle", true, nil)

	start := time.Now()
	records, err := c.AwaitCompletion(context.Background(), 50*time.Millisecond)
	if time.Since(start) < 50*time.Millisecond {
		t.Error("returned before timeout")
	}

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TimeoutError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error should match context.DeadlineExceeded")
	}
	if len(records) != 1 || len(te.Records) != 1 || te.Target != 2 {
		t.Errorf("records = %v, error records = %v, target = %d", records, te.Records, te.Target)
	}

	// Abandoned: late outcomes are rejected and never signal.
	if c.Record("weather", true, nil) {
		t.Error("record after abandon accepted")
	}
	if signaled(c) {
		t.Error("signaled after abandon")
	}
	if !c.Finished() {
		t.Error("Finished() = false after abandon")
	}
}

func TestCoordinatorAwaitTimeoutEmpty(t *testing.T) {
	c := NewCoordinator(1)
	records, err := c.AwaitCompletion(context.Background(), 10*time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TimeoutError", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want none", records)
	}
}

func TestCoordinatorAwaitCompletes(t *testing.T) {
	c := NewCoordinator(2)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Record("vehicle", true, nil)
		c.Record("weather", true, nil)
	}()
	records, err := c.AwaitCompletion(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("len(records) = %d, want 2", len(records))
	}
	if c.Abandon() {
		t.Error("Abandon after completion should report false")
	}
}

func TestCoordinatorAwaitContextCancel(t *testing.T) {
	c := NewCoordinator(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.AwaitCompletion(ctx, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCoordinatorZeroTarget(t *testing.T) {
	c := NewCoordinator(0)
	if !signaled(c) {
		t.Error("zero target should be complete immediately")
	}
	c.Record("x", true, nil)
}
