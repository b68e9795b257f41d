// Package discovery finds MCP tool servers announced on an MQTT broker and
// acquires an initialized session to each of them.
//
// A discovery run is threshold based: Connect subscribes to the presence
// topics matching a server name filter, initializes every distinct server
// it sees, and returns as soon as TargetCount servers have produced an
// outcome. The timeout is a safety net for a fleet that never reaches that
// size.
//
//	client, err := discovery.Connect(ctx, paho.NewDialer(paho.Options{}), discovery.Options{
//		Endpoint:    broker.Endpoint{Host: "localhost", Port: 1883},
//		Filter:      "sdv/#",
//		TargetCount: 2,
//		Timeout:     30 * time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	for name, session := range client.Sessions() {
//		tools, err := session.ListTools(ctx)
//		...
//	}
package discovery
