package markup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/feedveil/feedveil/internal/config"
	"github.com/feedveil/feedveil/internal/filter"
	"github.com/feedveil/feedveil/internal/llm"
)

const (
	genericWarning  = "Warning: Filtered Content"
	fallbackWarning = "Warning: This content may contain sensitive topics"
	filteredTitle   = "Content filtered"
	filteredBody    = "Content filtered due to sensitive topics"
)

// Transformer rewrites matched content into marked-up text keyed by
// intensity. Every path ends in Validate, and any model failure degrades to
// a deterministic rendition of the same intensity policy, so Transform
// always returns validly marked text.
type Transformer struct {
	model  llm.Model
	mode   string
	logger *slog.Logger
}

// NewTransformer creates a Transformer for the given processing mode.
func NewTransformer(model llm.Model, mode string, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		model:  model,
		mode:   mode,
		logger: logger,
	}
}

// Transform produces marker-delimited text for the given intensity.
func (t *Transformer) Transform(ctx context.Context, text string, intensity int, filters []filter.Filter) string {
	if strings.TrimSpace(text) == "" || len(filters) == 0 {
		return text
	}

	result, err := t.generate(ctx, text, intensity, filters)
	if err != nil {
		t.logger.Warn("model transformation failed, using deterministic fallback",
			"intensity", intensity,
			"error", err)
		result = t.Fallback(text, intensity, filters)
	}

	return Validate(result)
}

func (t *Transformer) generate(ctx context.Context, text string, intensity int, filters []filter.Filter) (string, error) {
	if t.mode == config.ModeAggressive {
		return t.aggressive(ctx, text, intensity, filters)
	}
	switch {
	case intensity < 3:
		return t.blur(ctx, text, filters)
	case intensity == 3:
		return t.overlay(ctx, text, filters)
	default:
		return t.rewrite(ctx, text, filters)
	}
}

// blur asks the model for the exact segments to hide and wraps each
// occurrence in blur markers.
func (t *Transformer) blur(ctx context.Context, text string, filters []filter.Filter) (string, error) {
	response, err := t.prompt(ctx, llm.LowIntensityPrompt, map[string]any{
		"text":    text,
		"filters": filterFormats(filters),
	})
	if err != nil {
		return "", err
	}

	var segments []string
	for _, line := range strings.Split(response, "\n") {
		segment := StripMarkers(strings.TrimSpace(line))
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	return mapSections(text, func(content string) string {
		return applyBlur(StripMarkers(content), segments)
	}), nil
}

// overlay asks the model for a short warning and wraps each section in an
// overlay carrying warning|content.
func (t *Transformer) overlay(ctx context.Context, text string, filters []filter.Filter) (string, error) {
	response, err := t.prompt(ctx, llm.MediumIntensityPrompt, map[string]any{
		"text":    text,
		"filters": filterFormats(filters),
	})
	if err != nil {
		return "", err
	}

	warning := StripMarkers(strings.TrimSpace(response))
	if warning == "" {
		warning = genericWarning
	}

	return mapSections(text, func(content string) string {
		return OverlayStart + warning + "|" + StripMarkers(content) + OverlayEnd
	}), nil
}

// rewrite asks the model to neutralize the filtered topics and wraps each
// rewritten section in rewrite markers.
func (t *Transformer) rewrite(ctx context.Context, text string, filters []filter.Filter) (string, error) {
	response, err := t.prompt(ctx, llm.HighIntensityPrompt, map[string]any{
		"text":    text,
		"filters": filterFormats(filters),
	})
	if err != nil {
		return "", err
	}

	rewritten := StripMarkers(response)

	// The model was told to keep the section tags; wrap whatever it kept.
	// If it dropped them entirely the rewritten text is one untagged region.
	return mapSections(rewritten, func(content string) string {
		return RewriteStart + content + RewriteEnd
	}), nil
}

// aggressive rewrites across all filters at once and layers an overlay
// warning over the rewritten content of each section.
func (t *Transformer) aggressive(ctx context.Context, text string, intensity int, filters []filter.Filter) (string, error) {
	response, err := t.prompt(ctx, llm.AggressiveModePrompt, map[string]any{
		"text":      text,
		"intensity": intensity,
		"filters":   filterFormats(filters),
	})
	if err != nil {
		return "", err
	}

	rewritten := StripMarkers(response)

	return mapSections(rewritten, func(content string) string {
		return OverlayStart + genericWarning + "|" +
			RewriteStart + content + RewriteEnd +
			OverlayEnd
	}), nil
}

// Fallback is the deterministic, non-generative rendition of the intensity
// policy. It never fails.
func (t *Transformer) Fallback(text string, intensity int, filters []filter.Filter) string {
	if t.mode == config.ModeAggressive {
		return mapSections(text, func(content string) string {
			return OverlayStart + genericWarning + "|" +
				RewriteStart + filteredBody + RewriteEnd +
				OverlayEnd
		})
	}

	switch {
	case intensity < 3:
		texts := filter.Texts(filters)
		return mapSections(text, func(content string) string {
			return applyBlur(content, texts)
		})
	case intensity == 3:
		return mapSections(text, func(content string) string {
			return OverlayStart + fallbackWarning + "|" + content + OverlayEnd
		})
	default:
		replacedTitle := false
		return mapSections(text, func(content string) string {
			// First section in document order is the title when present.
			if !replacedTitle {
				replacedTitle = true
				if _, hasTitle := TitleContent(text); hasTitle {
					return RewriteStart + filteredTitle + RewriteEnd
				}
			}
			return RewriteStart + filteredBody + RewriteEnd
		})
	}
}

func (t *Transformer) prompt(ctx context.Context, system string, input map[string]any) (string, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encoding transformation input: %w", err)
	}
	return t.model.Prompt(ctx, llm.Request{
		System: system,
		User:   "User Input: " + string(encoded),
	})
}

// applyBlur wraps each occurrence of the given segments in blur markers.
func applyBlur(content string, segments []string) string {
	result := content
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if strings.Contains(result, segment) {
			result = strings.ReplaceAll(result, segment, BlurStart+segment+BlurEnd)
		}
	}
	return result
}

func filterFormats(filters []filter.Filter) []map[string]any {
	formats := make([]map[string]any, 0, len(filters))
	for _, f := range filters {
		formats = append(formats, f.LLMFormat())
	}
	return formats
}
