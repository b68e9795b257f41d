// Package mcp adapts MCP servers to the tools.ToolExecutor contract.
//
// An MCPClient wraps either a session acquired through MQTT discovery or a
// connection to a statically configured HTTP MCP server (SSE or
// streamable HTTP) made with the MCP Go SDK. An MCPExecutor routes tool
// calls to the client that owns the tool.
package mcp
