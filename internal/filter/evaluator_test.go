package filter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/feedveil/feedveil/internal/config"
	"github.com/feedveil/feedveil/internal/llm"
)

type fakeModel struct {
	response string
	err      error
	calls    int
}

func (m *fakeModel) Prompt(ctx context.Context, req llm.Request) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func testFilters() []Filter {
	return []Filter{
		{ID: 1, Text: "spiders", Intensity: 5, ContentType: "all"},
		{ID: 2, Text: "politics", Intensity: 1, ContentType: "text"},
		{ID: 3, Text: "heights", Intensity: 3, ContentType: "all"},
	}
}

func TestEvaluateEmptyInputs(t *testing.T) {
	model := &fakeModel{}
	e := NewEvaluator(model, config.ModeBalanced, nil)

	tests := []struct {
		name    string
		text    string
		filters []Filter
	}{
		{"empty text", "", testFilters()},
		{"whitespace text", "   \n", testFilters()},
		{"no filters", "some content", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(context.Background(), tt.text, tt.filters); got != nil {
				t.Errorf("Evaluate() = %v, want nil", got)
			}
			if model.calls != 0 {
				t.Error("model should not be called for empty inputs")
			}
		})
	}
}

func TestEvaluateThresholds(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		response string
		want     []string
	}{
		{
			name:     "confidence above threshold",
			mode:     config.ModeBalanced,
			response: `{"matched_filter_ids": [0], "confidence_scores": {"0": 0.9}}`,
			want:     []string{"spiders"},
		},
		{
			name:     "confidence below threshold dropped",
			mode:     config.ModeBalanced,
			response: `{"matched_filter_ids": [0, 1], "confidence_scores": {"0": 0.9, "1": 0.5}}`,
			want:     []string{"spiders"},
		},
		{
			name:     "aggressive mode accepts lower confidence",
			mode:     config.ModeAggressive,
			response: `{"matched_filter_ids": [0], "confidence_scores": {"0": 0.35}}`,
			want:     []string{"spiders"},
		},
		{
			name:     "missing score treated as zero",
			mode:     config.ModeBalanced,
			response: `{"matched_filter_ids": [2], "confidence_scores": {}}`,
			want:     nil,
		},
		{
			name:     "invalid index skipped",
			mode:     config.ModeBalanced,
			response: `{"matched_filter_ids": [7, 1], "confidence_scores": {"1": 0.95}}`,
			want:     []string{"politics"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(&fakeModel{response: tt.response}, tt.mode, nil)
			got := e.Evaluate(context.Background(), "content with no filter words", testFilters())

			var gotTexts []string
			for _, f := range got {
				gotTexts = append(gotTexts, f.Text)
			}
			if len(gotTexts) != len(tt.want) {
				t.Fatalf("Evaluate() matched %v, want %v", gotTexts, tt.want)
			}
			for i := range tt.want {
				if gotTexts[i] != tt.want[i] {
					t.Errorf("match %d = %q, want %q", i, gotTexts[i], tt.want[i])
				}
			}
		})
	}
}

func TestEvaluateFallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"transport error", &fakeModel{err: errors.New("HTTP 503")}},
		{"permanent error", &fakeModel{err: errors.New("API key not valid")}},
		{"malformed json", &fakeModel{response: "not json at all"}},
		{"wrong shape", &fakeModel{response: `{"something": "else"}`}},
	}

	text := "I saw two SPIDERS crawling near the window"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(tt.model, config.ModeBalanced, nil)
			got := e.Evaluate(context.Background(), text, testFilters())

			if len(got) != 1 || got[0].Text != "spiders" {
				t.Errorf("fallback Evaluate() = %v, want [spiders]", got)
			}
		})
	}
}

func TestBasicMatchSubsetProperty(t *testing.T) {
	// Every fallback match must be a case-insensitive containment hit.
	texts := []string{
		"Nothing interesting here",
		"Talk about Politics and protests",
		"[TITLE]Spiders everywhere[/TITLE]\n[BODY]also heights[/BODY]",
	}

	for _, text := range texts {
		for _, f := range BasicMatch(text, testFilters()) {
			if !strings.Contains(strings.ToLower(text), strings.ToLower(f.Text)) {
				t.Errorf("BasicMatch returned %q which text %q does not contain", f.Text, text)
			}
		}
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name     string
		texts    []string
		expected string
	}{
		{"single", []string{"spiders"}, "spiders."},
		{"already terminated", []string{"spiders."}, "spiders."},
		{"lowercased", []string{"Spiders"}, "spiders."},
		{"multiple joined in order", []string{"b", "a"}, "b. a."},
		{"mixed", []string{"Big Dogs", "cats."}, "big dogs. cats."},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Signature(tt.texts); got != tt.expected {
				t.Errorf("Signature(%v) = %q, want %q", tt.texts, got, tt.expected)
			}
			// Deterministic on repeat.
			if again := Signature(tt.texts); again != Signature(tt.texts) {
				t.Errorf("Signature not deterministic for %v: %q vs %q", tt.texts, again, Signature(tt.texts))
			}
		})
	}
}
