// Package imagepipe decides and executes interventions on feed images. The
// synchronous path picks an intervention and hands replacement work to a
// queue; the worker in this package computes replacements in the background.
package imagepipe

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/feedveil/feedveil/internal/cache"
	"github.com/feedveil/feedveil/internal/filter"
	"github.com/feedveil/feedveil/internal/queue"
)

// Status of a replace intervention.
type Status string

const (
	StatusDeferred  Status = "DEFERRED"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// InterventionType names the treatment applied to an image.
type InterventionType string

const (
	// InterventionNone means the image needs no treatment.
	InterventionNone    InterventionType = ""
	InterventionBlur    InterventionType = "blur"
	InterventionOverlay InterventionType = "overlay"
	InterventionReplace InterventionType = "replace"
	InterventionError   InterventionType = "error"
)

// Box is one detected object region, normalized to the image dimensions.
type Box struct {
	Label      string  `json:"label"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Coverage is the vision analyzer's judgment of one element in an image.
type Coverage struct {
	Element    string `json:"element"`
	Present    int    `json:"present"`
	Coverage   int    `json:"coverage"`
	Centrality int    `json:"centrality"`
}

// VisionAnalyzer scores how strongly each element appears in an image.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, imageURL string, elements []string) ([]Coverage, error)
}

// Detector locates labeled objects in an image.
type Detector interface {
	DetectObjects(ctx context.Context, imageURL string, labels []string) ([]Box, error)
}

// InterventionResult is the outcome of one image decision. Type is empty when
// no intervention is needed. A replace intervention carries a Status: a cache
// hit completes immediately, otherwise the result is deferred while a worker
// computes the replacement.
type InterventionResult struct {
	ImageURL  string
	Type      InterventionType
	Status    Status
	ResultURL string
	Filters   []string
	Boxes     []Box
	Error     string
}

// Pipeline decides interventions for images. It never returns Go errors;
// failures surface as error-typed results or as no intervention.
type Pipeline struct {
	analyzer VisionAnalyzer
	detector Detector
	cache    *cache.ResultCache
	queue    queue.Queue
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline. detector may be nil when bounding-box
// interventions are not configured.
func NewPipeline(analyzer VisionAnalyzer, detector Detector, resultCache *cache.ResultCache, q queue.Queue, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		analyzer: analyzer,
		detector: detector,
		cache:    resultCache,
		queue:    q,
		logger:   logger,
	}
}

// ProcessImage picks the intervention for one image. Replacement is the only
// intervention selected here; blur and overlay exist for callers that request
// bounding boxes directly.
func (p *Pipeline) ProcessImage(ctx context.Context, imageURL string, filters []filter.Filter, userID string) InterventionResult {
	if imageURL == "" {
		p.logger.Warn("no image URL provided")
		return InterventionResult{Type: InterventionError, Error: "no image URL provided"}
	}
	if len(filters) == 0 {
		return InterventionResult{ImageURL: imageURL}
	}

	bestText := p.bestFilter(ctx, imageURL, filter.Texts(filters))
	if bestText == "" {
		return InterventionResult{ImageURL: imageURL}
	}

	matched := matchFilter(filters, bestText)
	if matched == nil {
		p.logger.Warn("analyzer element has no matching filter", "element", bestText)
		return InterventionResult{ImageURL: imageURL}
	}

	return p.replace(ctx, imageURL, matched.Text, userID)
}

// DeferredResult reports the replacement computed for an earlier DEFERRED
// response, or "" while the worker is still running.
func (p *Pipeline) DeferredResult(ctx context.Context, imageURL string, filterTexts []string) string {
	return p.cache.Get(ctx, imageURL, filterTexts)
}

func (p *Pipeline) replace(ctx context.Context, imageURL, filterText, userID string) InterventionResult {
	result := InterventionResult{
		ImageURL: imageURL,
		Type:     InterventionReplace,
		Filters:  []string{filterText},
	}

	if cached := p.cache.Get(ctx, imageURL, []string{filterText}); cached != "" {
		result.Status = StatusCompleted
		result.ResultURL = cached
		return result
	}

	job := queue.NewReplacementJob(imageURL, filterText, userID)
	if err := p.queue.Enqueue(ctx, job); err != nil {
		p.logger.Error("enqueuing replacement job failed", "image", imageURL, "error", err)
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}

	p.logger.Debug("replacement deferred", "image", imageURL, "filter", filterText, "job", job.JobID)
	result.Status = StatusDeferred
	return result
}

// bestFilter returns the present element with the highest coverage, or ""
// when the analyzer finds nothing or fails.
func (p *Pipeline) bestFilter(ctx context.Context, imageURL string, elements []string) string {
	scores, err := p.analyzer.Analyze(ctx, imageURL, elements)
	if err != nil {
		p.logger.Warn("image analysis failed", "image", imageURL, "error", err)
		return ""
	}

	best := ""
	highest := 0
	for _, score := range scores {
		if score.Present == 1 && score.Coverage > highest {
			highest = score.Coverage
			best = score.Element
		}
	}
	if best != "" {
		p.logger.Info("best filter for image", "image", imageURL, "filter", best, "coverage", highest)
	}
	return best
}

// BoundingBoxes detects labeled objects in an image, caching the detector
// output per (imageURL, labels). Failures degrade to no boxes.
func (p *Pipeline) BoundingBoxes(ctx context.Context, imageURL string, labels []string) []Box {
	if imageURL == "" || len(labels) == 0 || p.detector == nil {
		return nil
	}

	if cached := p.cache.Get(ctx, imageURL, labels); cached != "" {
		var boxes []Box
		if err := json.Unmarshal([]byte(cached), &boxes); err == nil {
			return boxes
		}
		p.logger.Warn("cached bounding boxes corrupt", "image", imageURL)
	}

	boxes, err := p.detector.DetectObjects(ctx, imageURL, labels)
	if err != nil {
		p.logger.Error("object detection failed", "image", imageURL, "error", err)
		return nil
	}

	if encoded, err := json.Marshal(boxes); err == nil {
		p.cache.Set(ctx, imageURL, labels, string(encoded))
	}
	return boxes
}

func matchFilter(filters []filter.Filter, text string) *filter.Filter {
	for i := range filters {
		if strings.EqualFold(filters[i].Text, text) {
			return &filters[i]
		}
	}
	return nil
}
