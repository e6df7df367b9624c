// Package filter holds the content filter model and the LLM-backed evaluator.
package filter

import (
	"context"
	"strings"
	"time"
)

// Filter is one user content filter. The pipeline holds a read-only snapshot
// of these for the duration of a single feed request.
type Filter struct {
	ID          int            `json:"id"`
	Text        string         `json:"filter_text"`
	Intensity   int            `json:"intensity"`
	ContentType string         `json:"content_type"`
	Metadata    map[string]any `json:"filter_metadata,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

// LLMFormat strips the filter down to the fields the model should see.
func (f Filter) LLMFormat() map[string]any {
	return map[string]any{
		"filter_text":     f.Text,
		"intensity":       f.Intensity,
		"content_type":    f.ContentType,
		"filter_metadata": f.Metadata,
	}
}

// Texts returns the filter texts in order.
func Texts(filters []Filter) []string {
	texts := make([]string, 0, len(filters))
	for _, f := range filters {
		texts = append(texts, f.Text)
	}
	return texts
}

// Signature canonicalizes filter texts into a cache sub-key: each text
// lower-cased and period-terminated, joined with single spaces in insertion
// order. Deterministic for a given sequence of texts.
func Signature(texts []string) string {
	formatted := make([]string, 0, len(texts))
	for _, text := range texts {
		text = strings.ToLower(text)
		if !strings.HasSuffix(text, ".") {
			text += "."
		}
		formatted = append(formatted, text)
	}
	return strings.Join(formatted, " ")
}

// Store provides the active filters for a user. Owned by the filter CRUD
// layer; consumed here as a read-only snapshot source.
type Store interface {
	ActiveFilters(ctx context.Context, userID string) ([]Filter, error)
}

// Prefs is the slice of user preferences the pipeline reads.
type Prefs struct {
	Mode string
}

// PreferenceStore provides per-user processing preferences.
type PreferenceStore interface {
	Preferences(ctx context.Context, userID string) (Prefs, error)
}
