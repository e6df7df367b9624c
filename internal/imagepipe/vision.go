package imagepipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/feedveil/feedveil/internal/llm"
	"github.com/feedveil/feedveil/internal/retry"
)

// ImageModel is the provider surface the vision analyzer needs: a prompt
// call that can reference an uploaded file.
type ImageModel interface {
	Prompt(ctx context.Context, req llm.Request) (string, error)
	UploadImage(ctx context.Context, data []byte, ext string) (string, error)
}

// AnthropicVision analyzes images by uploading them to the model provider
// and asking for per-element presence and coverage scores.
type AnthropicVision struct {
	model   ImageModel
	http    *http.Client
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewAnthropicVision creates a vision analyzer.
func NewAnthropicVision(model ImageModel, retrier *retry.Retrier, logger *slog.Logger) *AnthropicVision {
	if retrier == nil {
		retrier = retry.New(retry.DefaultPolicy(), retry.Transient, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicVision{
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
		retrier: retrier,
		logger:  logger,
	}
}

// Analyze downloads the image, stages it with the provider, and returns the
// elements the model judged present.
func (v *AnthropicVision) Analyze(ctx context.Context, imageURL string, elements []string) ([]Coverage, error) {
	if len(elements) == 0 {
		return nil, nil
	}

	data, contentType, err := downloadImage(ctx, v.http, v.retrier, imageURL)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}

	fileID, err := v.model.UploadImage(ctx, data, imageExt(contentType, imageURL))
	if err != nil {
		return nil, fmt.Errorf("staging image: %w", err)
	}

	response, err := v.model.Prompt(ctx, llm.Request{
		User:   fmt.Sprintf(llm.ImageAnalysisPrompt, strings.Join(elements, ", ")),
		Schema: llm.ImageAnalysisSchema,
		FileID: fileID,
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing image: %w", err)
	}

	var scores []Coverage
	if err := json.Unmarshal([]byte(extractArray(response)), &scores); err != nil {
		return nil, fmt.Errorf("decoding analysis: %w", err)
	}

	present := scores[:0]
	for _, score := range scores {
		if score.Present == 1 {
			present = append(present, score)
			v.logger.Debug("element present in image",
				"image", imageURL,
				"element", score.Element,
				"coverage", score.Coverage,
			)
		}
	}
	return present, nil
}

// extractArray trims any prose the model wrapped around the JSON array.
func extractArray(response string) string {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}
