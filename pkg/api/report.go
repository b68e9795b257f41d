package api

import (
	"strings"
	"time"
)

// Languages supported by the prompt set.
const (
	LanguageChinese = "zh"
	LanguageEnglish = "en"
)

// ReportInput asks for a driving-behavior report on one vehicle.
type ReportInput struct {
	VehicleID string `json:"vehicle_id"`

	// Query is an optional free-form focus for the analysis.
	Query string `json:"query,omitempty"`

	// Language selects the prompt set; empty means Chinese.
	Language string `json:"language,omitempty"`
}

// Normalize trims fields and applies the default language.
func (in *ReportInput) Normalize() {
	in.VehicleID = strings.TrimSpace(in.VehicleID)
	in.Query = strings.TrimSpace(in.Query)
	in.Language = strings.ToLower(strings.TrimSpace(in.Language))
	if in.Language == "" {
		in.Language = LanguageChinese
	}
}

// Validate checks a normalized input.
func (in *ReportInput) Validate() *APIError {
	if in.VehicleID == "" {
		return NewInvalidRequestError("vehicle_id", "vehicle_id is required")
	}
	if len(in.VehicleID) > 64 {
		return NewInvalidRequestError("vehicle_id", "vehicle_id must be at most 64 characters")
	}
	switch in.Language {
	case LanguageChinese, LanguageEnglish:
	default:
		return NewInvalidRequestError("language", "language must be zh or en")
	}
	return nil
}

// Usage counts tokens consumed by the model.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ToolInvocation records one tool call made while enriching the data.
type ToolInvocation struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Report is the outcome of a report workflow run.
type Report struct {
	ID        string    `json:"id"`
	VehicleID string    `json:"vehicle_id"`
	Query     string    `json:"query,omitempty"`
	Language  string    `json:"language"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`

	// Servers lists the tool servers that were available.
	Servers []string `json:"servers"`

	// Analysis is the enrich_data step's answer.
	Analysis string `json:"analysis"`

	// Content is the final report text.
	Content string `json:"content"`

	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
	Usage     Usage            `json:"usage"`
}
