package tools

import (
	"testing"
)

func TestFilterAllowedTools(t *testing.T) {
	tests := []struct {
		name         string
		calls        []ToolCall
		allowedTools []string
		wantAllowed  int
		wantRejected int
	}{
		{
			name: "all allowed when no filter",
			calls: []ToolCall{
				{ID: "c1", Name: "query_by_province_id"},
				{ID: "c2", Name: "query_vehicle_driving_behaviour_data"},
			},
			wantAllowed: 2,
		},
		{
			name:         "all allowed when empty filter",
			calls:        []ToolCall{{ID: "c1", Name: "query_by_city_id"}},
			allowedTools: []string{},
			wantAllowed:  1,
		},
		{
			name: "some rejected",
			calls: []ToolCall{
				{ID: "c1", Name: "query_by_city_id"},
				{ID: "c2", Name: "unlock_doors"},
				{ID: "c3", Name: "query_by_province_id"},
			},
			allowedTools: []string{"query_by_city_id", "query_by_province_id"},
			wantAllowed:  2,
			wantRejected: 1,
		},
		{
			name: "all rejected",
			calls: []ToolCall{
				{ID: "c1", Name: "unlock_doors"},
				{ID: "c2", Name: "flash_firmware"},
			},
			allowedTools: []string{"query_by_city_id"},
			wantRejected: 2,
		},
		{
			name:         "empty calls",
			calls:        []ToolCall{},
			allowedTools: []string{"query_by_city_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FilterAllowedTools(tt.calls, tt.allowedTools)

			if len(result.Allowed) != tt.wantAllowed {
				t.Errorf("allowed count = %d, want %d", len(result.Allowed), tt.wantAllowed)
			}
			if len(result.Rejected) != tt.wantRejected {
				t.Errorf("rejected count = %d, want %d", len(result.Rejected), tt.wantRejected)
			}
			for _, r := range result.Rejected {
				if !r.IsError || r.Output == "" {
					t.Errorf("rejected result for %q = %+v, want an error message", r.CallID, r)
				}
			}
		})
	}
}

func TestFilterDefinitions(t *testing.T) {
	defs := []Definition{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	if got := FilterDefinitions(defs, nil); len(got) != 3 {
		t.Errorf("no filter kept %d, want 3", len(got))
	}
	got := FilterDefinitions(defs, []string{"c", "a", "missing"})
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "c" {
		t.Errorf("filtered = %+v, want [a c] in original order", got)
	}
}
