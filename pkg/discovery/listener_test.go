package discovery

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/broker/memory"
	"github.com/rhuss/sdvagent/pkg/mqttmcp"
)

type discoveredNames struct {
	mu    sync.Mutex
	names []string
}

func (d *discoveredNames) add(n string) {
	d.mu.Lock()
	d.names = append(d.names, n)
	d.mu.Unlock()
}

func (d *discoveredNames) get() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]string(nil), d.names...)
	sort.Strings(out)
	return out
}

func publish(t *testing.T, c broker.Conn, name string, payload []byte) {
	t.Helper()
	if err := c.Publish(context.Background(), mqttmcp.PresenceTopic(name), payload, true); err != nil {
		t.Fatal(err)
	}
}

func presence(t *testing.T, name string) []byte {
	t.Helper()
	data, err := mqttmcp.EncodePresence(mqttmcp.Presence{ServerID: "id", ServerName: name})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestListenerDeduplicates(t *testing.T) {
	b := memory.New()
	conn, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "l"})
	defer conn.Close()
	pub, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "p"})
	defer pub.Close()

	var got discoveredNames
	l, err := NewListener(conn, "sdv/#", got.add, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, n := range []string{"sdv/vehicle", "sdv/weather", "sdv/vehicle", "sdv/weather", "sdv/vehicle", "sdv/map"} {
		publish(t, pub, n, presence(t, n))
	}

	eventually(t, "three distinct servers", func() bool { return len(got.get()) == 3 })
	time.Sleep(20 * time.Millisecond)
	if names := got.get(); len(names) != 3 || names[0] != "sdv/map" || names[1] != "sdv/vehicle" || names[2] != "sdv/weather" {
		t.Errorf("discovered %v, want each distinct name once", names)
	}
	if l.Seen() != 3 {
		t.Errorf("Seen() = %d, want 3", l.Seen())
	}
}

func TestListenerIgnoresWithdrawnAndMalformed(t *testing.T) {
	b := memory.New()
	conn, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "l"})
	defer conn.Close()
	pub, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "p"})
	defer pub.Close()

	var got discoveredNames
	l, err := NewListener(conn, "sdv/#", got.add, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	publish(t, pub, "sdv/withdrawn", nil)
	if err := pub.Publish(context.Background(), mqttmcp.PresenceTopic("sdv/withdrawn"), nil, false); err != nil {
		t.Fatal(err)
	}
	publish(t, pub, "sdv/broken", []byte("online"))
	publish(t, pub, "other/vehicle", presence(t, "other/vehicle"))
	publish(t, pub, "sdv/ok", presence(t, "sdv/ok"))

	eventually(t, "valid announcement", func() bool { return len(got.get()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if names := got.get(); len(names) != 1 || names[0] != "sdv/ok" {
		t.Errorf("discovered %v, want [sdv/ok]", names)
	}
}

func TestListenerReceivesRetained(t *testing.T) {
	b := memory.New()
	pub, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "p"})
	defer pub.Close()
	publish(t, pub, "sdv/vehicle", presence(t, "sdv/vehicle"))

	conn, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "l"})
	defer conn.Close()
	var got discoveredNames
	l, _ := NewListener(conn, "sdv/#", got.add, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	eventually(t, "retained announcement", func() bool { return len(got.get()) == 1 })
}

func TestListenerStopsAfterFinish(t *testing.T) {
	b := memory.New()
	conn, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "l"})
	defer conn.Close()
	pub, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "p"})
	defer pub.Close()

	var finished atomic.Bool
	var got discoveredNames
	l, _ := NewListener(conn, "sdv/#", got.add, finished.Load)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	publish(t, pub, "sdv/vehicle", presence(t, "sdv/vehicle"))
	eventually(t, "first announcement", func() bool { return len(got.get()) == 1 })

	finished.Store(true)
	publish(t, pub, "sdv/weather", presence(t, "sdv/weather"))
	time.Sleep(20 * time.Millisecond)
	if n := len(got.get()); n != 1 {
		t.Errorf("discovered %d servers after finish, want 1", n)
	}

	finished.Store(false)
	if err := l.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	publish(t, pub, "sdv/map", presence(t, "sdv/map"))
	time.Sleep(20 * time.Millisecond)
	if n := len(got.get()); n != 1 {
		t.Errorf("discovered %d servers after stop, want 1", n)
	}
}

func TestNewListenerValidates(t *testing.T) {
	b := memory.New()
	conn, _ := b.Dial(context.Background(), broker.Endpoint{ClientID: "l"})
	defer conn.Close()

	if _, err := NewListener(conn, "sdv/#/x", func(string) {}, nil); err == nil {
		t.Error("expected error for invalid filter")
	}
	if _, err := NewListener(conn, "sdv/#", nil, nil); err == nil {
		t.Error("expected error for missing callback")
	}
}
