package mqttmcp

import "strings"

// Topic prefixes. Each direction of an RPC channel has its own topic so a
// client never receives its own requests.
const (
	PresencePrefix = "mcp/presence/"
	RPCPrefix      = "mcp/rpc/"

	requestSuffix  = "/request"
	responseSuffix = "/response"
)

// PresenceTopic is the retained announcement topic of a server.
func PresenceTopic(serverName string) string {
	return PresencePrefix + serverName
}

// PresenceFilter turns a server name filter such as "sdv/#" into the
// subscription filter for the matching presence topics.
func PresenceFilter(nameFilter string) string {
	return PresencePrefix + nameFilter
}

// ServerNameFromPresence extracts the server name from a presence topic.
func ServerNameFromPresence(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, PresencePrefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// RequestTopic carries client to server messages.
func RequestTopic(serverName, clientID string) string {
	return RPCPrefix + serverName + "/" + clientID + requestSuffix
}

// ResponseTopic carries server to client messages.
func ResponseTopic(serverName, clientID string) string {
	return RPCPrefix + serverName + "/" + clientID + responseSuffix
}

// RequestFilter matches the request topics of every client of a server.
func RequestFilter(serverName string) string {
	return RPCPrefix + serverName + "/+" + requestSuffix
}

// ClientIDFromRequest extracts the client id from a request topic of the
// given server.
func ClientIDFromRequest(serverName, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, RPCPrefix+serverName+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, requestSuffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
