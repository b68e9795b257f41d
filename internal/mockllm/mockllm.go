// Package mockllm is a deterministic Chat Completions backend for demos and
// end-to-end tests. It plays the report workflow: with tools offered it
// first calls the vehicle data tool, then summarizes the tool results;
// without tools it writes a Markdown report from the conversation.
package mockllm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// DefaultModel is reported when a request names no model.
const DefaultModel = "mock-model"

// VehicleTool is the tool called on the first tool turn.
const VehicleTool = "query_vehicle_driving_behaviour_data"

var vehicleIDPattern = regexp.MustCompile(`\b(\d{5})\b`)

// Handler returns the backend's routes.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func (m chatMessage) text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type toolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function funcCall `json:"function"`
}

type funcCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// reply is the scripted answer to one request.
type reply struct {
	text  string
	calls []toolCall
}

func (r reply) finishReason() string {
	if len(r.calls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// --- Handler ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}

	rep := classify(&req)
	if req.Stream {
		handleStreaming(w, &req, rep)
		return
	}

	msg := chatMessage{Role: "assistant", ToolCalls: rep.calls}
	if rep.text != "" || len(rep.calls) == 0 {
		text := rep.text
		msg.Content = &text
	}
	resp := chatResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []chatChoice{{
			Message:      msg,
			FinishReason: rep.finishReason(),
		}},
		Usage: usage(&req, rep),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// classify picks the scripted reply for the state of the conversation.
func classify(req *chatRequest) reply {
	if len(req.Tools) == 0 {
		return reply{text: reportText(req)}
	}

	results := toolResults(req)
	if len(results) == 0 && offersTool(req, VehicleTool) {
		return reply{calls: []toolCall{{
			ID:   "call_mock_1",
			Type: "function",
			Function: funcCall{
				Name:      VehicleTool,
				Arguments: fmt.Sprintf(`{"vehicle_id":%q}`, vehicleID(req)),
			},
		}}}
	}
	return reply{text: summaryText(results)}
}

func offersTool(req *chatRequest, name string) bool {
	for _, t := range req.Tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

func toolResults(req *chatRequest) []string {
	var out []string
	for _, m := range req.Messages {
		if m.Role == "tool" {
			out = append(out, m.text())
		}
	}
	return out
}

func vehicleID(req *chatRequest) string {
	for _, m := range req.Messages {
		if m.Role != "user" && m.Role != "system" {
			continue
		}
		if match := vehicleIDPattern.FindStringSubmatch(m.text()); match != nil {
			return match[1]
		}
	}
	return "00001"
}

// summaryText counts the driving events found in the tool results.
func summaryText(results []string) string {
	counts := map[string]int{}
	total := 0
	for _, res := range results {
		var data struct {
			Data []struct {
				Type string `json:"type"`
			} `json:"data"`
		}
		if json.Unmarshal([]byte(res), &data) != nil {
			continue
		}
		for _, ev := range data.Data {
			counts[ev.Type]++
			total++
		}
	}
	return fmt.Sprintf("Data summary: %d events (%d sudden_acceleration, %d sudden_deceleration, %d max_speed).",
		total, counts["sudden_acceleration"], counts["sudden_deceleration"], counts["max_speed"])
}

// reportText writes the report from the last assistant answer.
func reportText(req *chatRequest) string {
	summary := "No data was collected."
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if m := req.Messages[i]; m.Role == "assistant" && m.text() != "" {
			summary = m.text()
			break
		}
	}
	return "# Driving Behavior Report\n\n## Overview\n\n" + summary + "\n\n## Recommendations\n\nKeep a steady speed.\n"
}

func usage(req *chatRequest, rep reply) chatUsage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += len(m.text())/4 + 1
	}
	completion := len(rep.text)/4 + len(rep.calls)*10 + 1
	return chatUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// --- Streaming ---

func handleStreaming(w http.ResponseWriter, req *chatRequest, rep reply) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeChunk(w, req.Model, map[string]any{"role": "assistant"}, nil, nil)
	flusher.Flush()

	for _, token := range strings.SplitAfter(rep.text, " ") {
		if token == "" {
			continue
		}
		writeChunk(w, req.Model, map[string]any{"content": token}, nil, nil)
		flusher.Flush()
	}

	// Tool call arguments arrive in two fragments like real backends send them.
	for i, tc := range rep.calls {
		half := len(tc.Function.Arguments) / 2
		writeChunk(w, req.Model, map[string]any{"tool_calls": []any{map[string]any{
			"index": i, "id": tc.ID, "type": "function",
			"function": map[string]any{"name": tc.Function.Name, "arguments": tc.Function.Arguments[:half]},
		}}}, nil, nil)
		writeChunk(w, req.Model, map[string]any{"tool_calls": []any{map[string]any{
			"index": i, "function": map[string]any{"arguments": tc.Function.Arguments[half:]},
		}}}, nil, nil)
		flusher.Flush()
	}

	finish := rep.finishReason()
	u := usage(req, rep)
	writeChunk(w, req.Model, map[string]any{}, &finish, &u)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeChunk(w http.ResponseWriter, model string, delta map[string]any, finish *string, u *chatUsage) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	}
	if u != nil {
		chunk["usage"] = u
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// --- Models endpoint ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": DefaultModel, "object": "model", "owned_by": "sdvagent-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
