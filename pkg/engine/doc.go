// Package engine runs the driving-behavior report workflow.
//
// An Agent drives the streaming tool-calling loop against a provider: each
// turn streams the model, executes the requested tools through the
// configured executors and feeds the results back until the model answers.
// The Engine composes two steps on top of it. enrich_data lets the agent
// collect vehicle and weather data with tools; gen_report streams the final
// report over the chat history kept in a token-bounded Memory. Progress is
// reported through an EventWriter.
package engine
