// Package tools defines the executor contract through which the agent
// invokes tools, and the tool definitions it hands to the language model.
//
// Executors exist for MCP servers found through MQTT discovery and for
// statically configured HTTP MCP servers (see pkg/tools/mcp). The package
// also filters tool calls against a configured allow list.
package tools
