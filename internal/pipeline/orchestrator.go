package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedveil/feedveil/internal/config"
	"github.com/feedveil/feedveil/internal/filter"
	"github.com/feedveil/feedveil/internal/imagepipe"
)

// maxIntensity is forced for every transformation: per-filter intensity
// tiers still gate evaluation confidence, but matched content always gets
// the strongest treatment.
const maxIntensity = 5

// Evaluator decides which filters match a unit of content.
type Evaluator interface {
	Evaluate(ctx context.Context, text string, filters []filter.Filter) []filter.Filter
}

// Transformer rewrites matched content into marker-delimited text.
type Transformer interface {
	Transform(ctx context.Context, text string, intensity int, filters []filter.Filter) string
}

// ImageProcessor decides the intervention for one image.
type ImageProcessor interface {
	ProcessImage(ctx context.Context, imageURL string, filters []filter.Filter, userID string) imagepipe.InterventionResult
}

// ComponentsFunc builds the text components for a request's processing mode.
type ComponentsFunc func(mode string) (Evaluator, Transformer)

// Limits bounds the orchestrator's fan-out per request.
type Limits struct {
	MaxWorkers         int
	MaxImagesPerPost   int
	MaxPostsWithImages int
}

// DefaultLimits mirror the default config surface.
func DefaultLimits() Limits {
	return Limits{MaxWorkers: 4, MaxImagesPerPost: 1, MaxPostsWithImages: 5}
}

// Orchestrator fans a feed's posts out to the evaluator, transformer, and
// image pipeline with bounded parallelism, isolating each post's failures.
type Orchestrator struct {
	filters filter.Store
	prefs   filter.PreferenceStore
	build   ComponentsFunc
	images  ImageProcessor
	log     ProcessingLog
	limits  Limits
	logger  *slog.Logger
}

// NewOrchestrator wires the orchestrator. prefs may be nil; balanced mode is
// assumed. procLog may be nil to use a slog-backed sink.
func NewOrchestrator(filters filter.Store, prefs filter.PreferenceStore, build ComponentsFunc, images ImageProcessor, procLog ProcessingLog, limits Limits, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if procLog == nil {
		procLog = NewSlogProcessingLog(logger)
	}
	if limits.MaxWorkers < 1 {
		limits.MaxWorkers = DefaultLimits().MaxWorkers
	}
	return &Orchestrator{
		filters: filters,
		prefs:   prefs,
		build:   build,
		images:  images,
		log:     procLog,
		limits:  limits,
		logger:  logger,
	}
}

// ProcessFeed processes every post and returns the feed in its original
// order and length. Filters and preferences are snapshotted once per call;
// a post that fails comes back unmodified and never aborts the batch.
func (o *Orchestrator) ProcessFeed(ctx context.Context, userID string, posts []Post) []Post {
	if len(posts) == 0 {
		return posts
	}

	filters, err := o.filters.ActiveFilters(ctx, userID)
	if err != nil {
		o.logger.Error("loading filters failed, feed returned unmodified", "user", userID, "error", err)
		return posts
	}
	if len(filters) == 0 {
		return posts
	}

	mode := o.mode(ctx, userID)
	evaluator, transformer := o.build(mode)
	o.logger.Info("processing feed",
		"user", userID,
		"posts", len(posts),
		"filters", len(filters),
		"mode", mode,
	)

	imageAllowance := o.imageAllowance(posts)

	results := make([]Post, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.limits.MaxWorkers)

	for i := range posts {
		i := i
		post := posts[i]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("post processing panicked, returning original",
						"post", post.ID,
						"panic", r,
					)
					results[i] = posts[i]
				}
			}()
			results[i] = o.processPost(gctx, userID, mode, post, filters, evaluator, transformer, imageAllowance[i])
			return nil
		})
	}
	g.Wait()

	return results
}

// ProcessImage exposes the image decision directly for callers that handle
// single media URLs.
func (o *Orchestrator) ProcessImage(ctx context.Context, imageURL string, filters []filter.Filter, userID string) imagepipe.InterventionResult {
	return o.images.ProcessImage(ctx, imageURL, filters, userID)
}

func (o *Orchestrator) mode(ctx context.Context, userID string) string {
	if o.prefs == nil {
		return config.ModeBalanced
	}
	prefs, err := o.prefs.Preferences(ctx, userID)
	if err != nil || prefs.Mode == "" {
		return config.ModeBalanced
	}
	return prefs.Mode
}

// imageAllowance marks which posts get image treatment: the first
// MaxPostsWithImages posts that carry media. Posts past the cap still get
// text treatment.
func (o *Orchestrator) imageAllowance(posts []Post) []bool {
	allowance := make([]bool, len(posts))
	granted := 0
	for i := range posts {
		if len(posts[i].MediaURLs) == 0 {
			continue
		}
		if o.limits.MaxPostsWithImages > 0 && granted >= o.limits.MaxPostsWithImages {
			continue
		}
		allowance[i] = true
		granted++
	}
	return allowance
}

func (o *Orchestrator) processPost(ctx context.Context, userID, mode string, post Post, filters []filter.Filter, evaluator Evaluator, transformer Transformer, withImages bool) Post {
	combined := post.CombinedText()
	if combined == "" && len(post.MediaURLs) == 0 {
		return post
	}

	start := time.Now()
	var matched []filter.Filter

	if combined != "" {
		matched = evaluator.Evaluate(ctx, combined, filters)
		if len(matched) > 0 {
			processed := transformer.Transform(ctx, combined, maxIntensity, matched)
			post.ApplyProcessed(processed)
		}
	}

	if withImages && o.images != nil {
		urls := post.MediaURLs
		if o.limits.MaxImagesPerPost > 0 && len(urls) > o.limits.MaxImagesPerPost {
			urls = urls[:o.limits.MaxImagesPerPost]
		}
		for _, url := range urls {
			post.ProcessedMedia = append(post.ProcessedMedia, o.processMedia(ctx, url, filters, userID))
		}
	}

	o.log.Record(ctx, ProcessingRecord{
		UserID:             userID,
		Platform:           post.Platform,
		ContentHash:        contentHash(combined),
		MatchedFilterTexts: filter.Texts(matched),
		DurationMs:         time.Since(start).Milliseconds(),
	})

	return post
}

func (o *Orchestrator) processMedia(ctx context.Context, url string, filters []filter.Filter, userID string) MediaResult {
	result := o.images.ProcessImage(ctx, url, filters, userID)

	media := MediaResult{URL: url}
	if result.ImageURL != "" {
		media.URL = result.ImageURL
	}

	switch result.Type {
	case imagepipe.InterventionNone:
		// No treatment needed; config stays nil.
	case imagepipe.InterventionError:
		media.Config = &Intervention{
			Type:    imagepipe.InterventionError,
			Status:  imagepipe.StatusError,
			Message: result.Error,
		}
	default:
		media.Config = &Intervention{
			Type:    result.Type,
			Status:  result.Status,
			Filters: result.Filters,
			Boxes:   result.Boxes,
			Message: result.Error,
		}
	}
	return media
}

func contentHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
