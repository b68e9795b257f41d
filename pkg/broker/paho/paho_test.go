package paho

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcwait "github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/sdvagent/internal/testenv"
	"github.com/rhuss/sdvagent/pkg/broker"
)

// startMosquitto runs an anonymous mosquitto broker and returns its endpoint.
func startMosquitto(t *testing.T) broker.Endpoint {
	t.Helper()
	testenv.RequireContainers(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			WaitingFor:   tcwait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skipping: could not start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1883/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return broker.Endpoint{Host: host, Port: port.Int()}
}

func TestPahoRoundTrip(t *testing.T) {
	ep := startMosquitto(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	d := NewDialer(Options{})

	pubEP := ep
	pubEP.ClientID = "paho-test-pub"
	pub, err := d.Dial(ctx, pubEP)
	if err != nil {
		t.Fatalf("Dial pub: %v", err)
	}
	defer pub.Close()

	subEP := ep
	subEP.ClientID = "paho-test-sub"
	sub, err := d.Dial(ctx, subEP)
	if err != nil {
		t.Fatalf("Dial sub: %v", err)
	}
	defer sub.Close()

	// A retained message must be replayed to a later subscriber.
	if err := pub.Publish(ctx, "mcp/presence/sdv/devices/vehicle", []byte(`{"ok":true}`), true); err != nil {
		t.Fatalf("Publish retained: %v", err)
	}

	got := make(chan broker.Message, 4)
	if err := sub.Subscribe(ctx, "mcp/presence/sdv/#", func(m broker.Message) { got <- m }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case m := <-got:
		if m.Topic != "mcp/presence/sdv/devices/vehicle" {
			t.Errorf("topic = %q", m.Topic)
		}
		if !m.Retained {
			t.Error("expected retained message")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for retained message")
	}

	// Clear the retained message so reruns start clean.
	if err := pub.Publish(ctx, "mcp/presence/sdv/devices/vehicle", nil, true); err != nil {
		t.Fatalf("Publish clear: %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sub.Publish(ctx, "x", nil, false); !errors.Is(err, broker.ErrClosed) {
		t.Errorf("Publish after Close error = %v, want ErrClosed", err)
	}
}

func TestPahoDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := NewDialer(Options{ConnectTimeout: time.Second})
	// Port 1 on loopback is reserved and refuses connections.
	_, err := d.Dial(ctx, broker.Endpoint{Host: "127.0.0.1", Port: 1, ClientID: "unreachable"})
	if err == nil {
		t.Fatal("expected error dialing an unreachable broker")
	}
}
