// Package platform extracts platform-agnostic posts from raw feed documents.
package platform

import (
	"context"

	"github.com/feedveil/feedveil/internal/pipeline"
)

// Adapter parses one platform's raw feed document into posts.
type Adapter interface {
	// Platform names the source, matching Post.Platform.
	Platform() string
	// Parse extracts the posts from a raw feed document.
	Parse(ctx context.Context, raw []byte) ([]pipeline.Post, error)
}
