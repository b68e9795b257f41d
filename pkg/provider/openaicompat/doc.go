// Package openaicompat implements the HTTP client, request translation,
// SSE stream parsing and error mapping shared by adapters for
// OpenAI-compatible Chat Completions backends.
package openaicompat
