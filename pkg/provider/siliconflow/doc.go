// Package siliconflow implements the Provider interface for the SiliconFlow
// inference API. SiliconFlow exposes an OpenAI-compatible Chat Completions
// API, so this adapter delegates all HTTP communication to the shared
// openaicompat.Client and adds model name mapping.
package siliconflow
