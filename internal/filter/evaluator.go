package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/feedveil/feedveil/internal/config"
	"github.com/feedveil/feedveil/internal/llm"
)

// Evaluator decides which filters match a unit of content. One batched model
// call per evaluation; any model or decode failure degrades to substring
// matching, so Evaluate never fails.
type Evaluator struct {
	model  llm.Model
	mode   string
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator for the given processing mode.
func NewEvaluator(model llm.Model, mode string, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		model:  model,
		mode:   mode,
		logger: logger,
	}
}

// matchResponse is the strict shape of the evaluation response. Anything
// that does not decode into it fails closed into the fallback path.
type matchResponse struct {
	MatchedFilterIDs []int              `json:"matched_filter_ids"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
}

// Evaluate returns the subset of filters the content matches. Empty text or
// an empty filter set match nothing.
func (e *Evaluator) Evaluate(ctx context.Context, text string, filters []Filter) []Filter {
	if strings.TrimSpace(text) == "" || len(filters) == 0 {
		return nil
	}

	matched, err := e.evaluateWithModel(ctx, text, filters)
	if err != nil {
		e.logger.Warn("model evaluation failed, falling back to basic matching", "error", err)
		return BasicMatch(text, filters)
	}
	return matched
}

func (e *Evaluator) evaluateWithModel(ctx context.Context, text string, filters []Filter) ([]Filter, error) {
	input, err := json.Marshal(map[string]any{
		"text":    text,
		"filters": llmFormats(filters),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding evaluation input: %w", err)
	}

	response, err := e.model.Prompt(ctx, llm.Request{
		System: llm.FilterEvaluationPrompt,
		User:   "User Input: " + string(input),
		Schema: llm.FilterEvaluationSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation prompt: %w", err)
	}

	var matches matchResponse
	if err := json.Unmarshal([]byte(response), &matches); err != nil {
		return nil, fmt.Errorf("decoding evaluation response: %w", err)
	}
	if matches.ConfidenceScores == nil {
		return nil, fmt.Errorf("evaluation response missing confidence scores")
	}

	var validated []Filter
	for _, idx := range matches.MatchedFilterIDs {
		if idx < 0 || idx >= len(filters) {
			e.logger.Warn("model returned invalid filter index", "index", idx, "filter_count", len(filters))
			continue
		}

		f := filters[idx]
		confidence := matches.ConfidenceScores[strconv.Itoa(idx)]
		threshold := config.Threshold(e.mode, f.Intensity)

		if confidence >= threshold {
			validated = append(validated, f)
			e.logger.Debug("filter matched",
				"filter", f.Text,
				"confidence", confidence,
				"threshold", threshold)
		} else {
			e.logger.Debug("filter below threshold",
				"filter", f.Text,
				"confidence", confidence,
				"threshold", threshold)
		}
	}

	return validated, nil
}

// BasicMatch is the deterministic fallback: case-insensitive substring
// containment between filter text and content.
func BasicMatch(text string, filters []Filter) []Filter {
	var matched []Filter
	lower := strings.ToLower(text)
	for _, f := range filters {
		if f.Text != "" && strings.Contains(lower, strings.ToLower(f.Text)) {
			matched = append(matched, f)
		}
	}
	return matched
}

func llmFormats(filters []Filter) []map[string]any {
	formats := make([]map[string]any, 0, len(filters))
	for _, f := range filters {
		formats = append(formats, f.LLMFormat())
	}
	return formats
}
