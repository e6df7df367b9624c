// Package llm is the boundary to the generative model provider.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/feedveil/feedveil/internal/retry"
)

// Request is a single prompt to the model. Schema, when set, requests
// structured JSON output matching it. FileID references a previously
// uploaded file (used by the vision analyzer).
type Request struct {
	System string
	User   string
	Schema string
	FileID string
}

// Model is the minimal surface the pipeline components need. Implementations
// own their retry behavior; an error from Prompt is final and the caller
// degrades to its fallback.
type Model interface {
	Prompt(ctx context.Context, req Request) (string, error)
}

// Anthropic talks to the Anthropic API through llmkit, retrying transient
// failures with the shared backoff policy.
type Anthropic struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	retrier     *retry.Retrier
	logger      *slog.Logger
}

// NewAnthropic creates a provider client. The API key is required.
func NewAnthropic(apiKey, model string, maxTokens int, temperature float64, retrier *retry.Retrier, logger *slog.Logger) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if retrier == nil {
		retrier = retry.New(retry.DefaultPolicy(), retry.Transient, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Anthropic{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		retrier:     retrier,
		logger:      logger,
	}, nil
}

// Prompt sends one request and returns the text of the first content block.
func (a *Anthropic) Prompt(ctx context.Context, req Request) (string, error) {
	settings := types.RequestSettings{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}

	var files []types.File
	if req.FileID != "" {
		files = append(files, types.File{ID: req.FileID})
	}

	var text string
	err := a.retrier.Do(ctx, "anthropic prompt", func() error {
		response, err := anthropic.PromptWithSettings(req.System, req.User, req.Schema, a.apiKey, settings, files...)
		if err != nil {
			return fmt.Errorf("prompting model: %w", err)
		}
		if len(response.Content) == 0 {
			return &retry.MalformedResponseError{Reason: "no content in response"}
		}
		text = response.Content[0].Text
		return nil
	})
	if err != nil {
		return "", err
	}

	return text, nil
}

// UploadImage stages image bytes with the provider and returns the file ID
// for use in a follow-up Prompt.
func (a *Anthropic) UploadImage(ctx context.Context, data []byte, ext string) (string, error) {
	tempFile, err := os.CreateTemp("", "feedveil-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("writing image data: %w", err)
	}
	tempFile.Close()

	var fileID string
	err = a.retrier.Do(ctx, "anthropic upload", func() error {
		file, err := anthropic.UploadFile(tempFile.Name(), a.apiKey)
		if err != nil {
			return fmt.Errorf("uploading image: %w", err)
		}
		fileID = file.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	return fileID, nil
}
