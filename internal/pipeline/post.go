// Package pipeline drives the feed processing flow: filter evaluation,
// marker transformation, and image interventions across a batch of posts.
package pipeline

import (
	"time"

	"github.com/feedveil/feedveil/internal/imagepipe"
	"github.com/feedveil/feedveil/internal/markup"
)

// Post is the platform-agnostic feed item. Adapters create posts from raw
// documents; only the pipeline writes the Processed fields.
type Post struct {
	ID             string
	Title          *string
	Body           *string
	Platform       string
	CreatedAt      time.Time
	Metadata       map[string]any
	MediaURLs      []string
	ProcessedTitle *string
	ProcessedBody  *string
	ProcessedMedia []MediaResult
}

// MediaResult pairs one media URL with its intervention. Config is nil when
// the image needs no treatment.
type MediaResult struct {
	URL    string
	Config *Intervention
}

// Intervention is the treatment chosen for one image.
type Intervention struct {
	Type    imagepipe.InterventionType
	Status  imagepipe.Status
	Filters []string
	Boxes   []imagepipe.Box
	Message string
}

// CombinedText renders the title and body with section tags for the
// transformer. Posts with neither return "".
func (p *Post) CombinedText() string {
	var combined string
	if p.Title != nil && *p.Title != "" {
		combined += markup.TitleOpen + *p.Title + markup.TitleClose + "\n"
	}
	if p.Body != nil && *p.Body != "" {
		combined += markup.BodyOpen + *p.Body + markup.BodyClose
	}
	return combined
}

// ApplyProcessed splits marked-up text back into the processed title and
// body. Sections absent from the text leave the corresponding field nil.
func (p *Post) ApplyProcessed(marked string) {
	if title, ok := markup.TitleContent(marked); ok {
		p.ProcessedTitle = &title
	}
	if body, ok := markup.BodyContent(marked); ok {
		p.ProcessedBody = &body
	}
}
