package mqttmcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/rhuss/sdvagent/pkg/broker"
)

const (
	methodServerOnline = "notifications/server/online"
	methodDisconnected = "notifications/disconnected"
)

// Presence is the announcement a tool server publishes, retained, on its
// presence topic.
type Presence struct {
	ServerID    string `json:"server_id"`
	ServerName  string `json:"server_name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// EncodePresence encodes p as a JSON-RPC notification.
func EncodePresence(p Presence) ([]byte, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return jsonrpc.EncodeMessage(&jsonrpc.Request{
		Method: methodServerOnline,
		Params: params,
	})
}

// ParsePresence decodes a presence payload. Empty payloads are withdrawn
// announcements and must be handled by the caller before calling this.
func ParsePresence(payload []byte) (Presence, error) {
	msg, err := jsonrpc.DecodeMessage(payload)
	if err != nil {
		return Presence{}, fmt.Errorf("decoding presence: %w", err)
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok || req.IsCall() || req.Method != methodServerOnline {
		return Presence{}, fmt.Errorf("presence is not a %s notification", methodServerOnline)
	}
	var p Presence
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return Presence{}, fmt.Errorf("decoding presence params: %w", err)
		}
	}
	return p, nil
}

// PresenceWill returns the last will that withdraws a server's presence
// when its broker connection drops.
func PresenceWill(serverName string) *broker.Will {
	return &broker.Will{Topic: PresenceTopic(serverName), Retained: true}
}

func encodeDisconnected() ([]byte, error) {
	return jsonrpc.EncodeMessage(&jsonrpc.Request{Method: methodDisconnected})
}
