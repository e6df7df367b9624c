package imagepipe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/feedveil/feedveil/internal/retry"
)

// ReplacementImage is the generator's output: a hosted URL, or raw bytes
// that still need a home in the blob store.
type ReplacementImage struct {
	URL  string
	Data []byte
}

// ReplacementGenerator produces an edited version of an image with the
// filtered subject removed or replaced.
type ReplacementGenerator interface {
	GenerateReplacement(ctx context.Context, image []byte, filterText string) (ReplacementImage, error)
}

// replacementPrompt instructs the edit model. The filter text may itself
// describe the substitution ("spiders with butterflies").
const replacementPrompt = `Edit this image based on the following instruction: %s

If the instruction mentions replacing something with something else, identify the first object and replace it with the second object while maintaining the overall composition.

If the instruction only mentions removing something, replace it with something pleasant and neutral that fits the context.

Make the edit look natural and seamless. Maintain the lighting, style, and overall aesthetic of the image.`

// HTTPReplacementGenerator calls an image-edit endpoint with the source
// image and an instruction built from the filter text. The endpoint follows
// the common edits shape: multipart request, JSON response with a url or
// base64 payload per result.
type HTTPReplacementGenerator struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	retrier  *retry.Retrier
	logger   *slog.Logger
}

// NewHTTPReplacementGenerator creates a generator against the given endpoint.
func NewHTTPReplacementGenerator(endpoint, apiKey, model string, retrier *retry.Retrier, logger *slog.Logger) *HTTPReplacementGenerator {
	if retrier == nil {
		retrier = retry.New(retry.DefaultPolicy(), retry.Transient, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPReplacementGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: 120 * time.Second},
		retrier:  retrier,
		logger:   logger,
	}
}

type editResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (g *HTTPReplacementGenerator) GenerateReplacement(ctx context.Context, image []byte, filterText string) (ReplacementImage, error) {
	var result ReplacementImage
	err := g.retrier.Do(ctx, "image edit", func() error {
		body, contentType, err := g.buildRequest(image, filterText)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, body)
		if err != nil {
			return fmt.Errorf("building edit request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+g.apiKey)

		resp, err := g.http.Do(req)
		if err != nil {
			return fmt.Errorf("calling edit endpoint: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &retry.HTTPError{StatusCode: resp.StatusCode, URL: g.endpoint}
		}

		var decoded editResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return &retry.MalformedResponseError{Reason: "invalid edit response: " + err.Error()}
		}
		if len(decoded.Data) == 0 {
			return &retry.MalformedResponseError{Reason: "edit response has no results"}
		}

		first := decoded.Data[0]
		if first.URL != "" {
			result = ReplacementImage{URL: first.URL}
			return nil
		}
		if first.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(first.B64JSON)
			if err != nil {
				return &retry.MalformedResponseError{Reason: "invalid base64 image data"}
			}
			result = ReplacementImage{Data: data}
			return nil
		}
		return &retry.MalformedResponseError{Reason: "edit result has neither url nor image data"}
	})
	return result, err
}

func (g *HTTPReplacementGenerator) buildRequest(image []byte, filterText string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("model", g.model); err != nil {
		return nil, "", fmt.Errorf("writing model field: %w", err)
	}
	if err := writer.WriteField("prompt", fmt.Sprintf(replacementPrompt, filterText)); err != nil {
		return nil, "", fmt.Errorf("writing prompt field: %w", err)
	}

	part, err := writer.CreateFormFile("image", "source.png")
	if err != nil {
		return nil, "", fmt.Errorf("creating image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("writing image part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalizing request body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// BlobStore persists generated image bytes and returns a URL for them.
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// LocalBlobStore writes blobs to a directory and serves them by path.
type LocalBlobStore struct {
	dir string
}

// NewLocalBlobStore creates the directory if needed.
func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &LocalBlobStore{dir: dir}, nil
}

func (s *LocalBlobStore) Store(ctx context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}
	return "/" + filepath.ToSlash(path), nil
}
