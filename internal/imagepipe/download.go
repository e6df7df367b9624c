package imagepipe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/feedveil/feedveil/internal/retry"
)

const downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// downloadImage fetches the image bytes and reports the response content
// type, retrying transient HTTP failures. 403 and 404 responses are
// permanent; the source is gone or blocked.
func downloadImage(ctx context.Context, client *http.Client, retrier *retry.Retrier, imageURL string) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
	)
	err := retrier.Do(ctx, "image download", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("User-Agent", downloadUserAgent)
		req.Header.Set("Accept", "image/*,*/*;q=0.8")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("fetching image: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &retry.HTTPError{StatusCode: resp.StatusCode, URL: imageURL}
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading image body: %w", err)
		}
		contentType = resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// imageExt guesses a file extension from the response content type, falling
// back to the URL path and then to PNG.
func imageExt(contentType, imageURL string) string {
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	}

	lower := strings.ToLower(imageURL)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return ".jpg"
	case strings.HasSuffix(lower, ".webp"):
		return ".webp"
	default:
		return ".png"
	}
}
