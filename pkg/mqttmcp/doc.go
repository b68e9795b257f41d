// Package mqttmcp carries the Model Context Protocol over MQTT.
//
// A tool server announces itself with a retained JSON-RPC notification on
// mcp/presence/{server-name}. Clients talk to it on a pair of per-client
// topics, mcp/rpc/{server-name}/{client-id}/request and .../response, each
// payload holding exactly one JSON-RPC message. ClientTransport and Server
// plug these topics into the MCP Go SDK as an mcp.Transport, so the SDK
// performs the initialize handshake and all request correlation.
package mqttmcp
