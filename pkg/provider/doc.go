// Package provider defines the interface for LLM inference backends used by
// the report workflow. Adapters speak the backend protocol (OpenAI-style
// Chat Completions for every backend so far) and convert it to the
// ProviderRequest, ProviderResponse and ProviderEvent types, keeping backend
// details out of the engine.
package provider
