package imagepipe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/feedveil/feedveil/internal/cache"
	"github.com/feedveil/feedveil/internal/notify"
	"github.com/feedveil/feedveil/internal/queue"
	"github.com/feedveil/feedveil/internal/retry"
)

// Worker computes deferred image replacements. A failed job caches the
// original URL under the same key so callers stop waiting and never requeue
// the same failure; the notification still goes out with whichever URL ended
// up cached.
type Worker struct {
	generator ReplacementGenerator
	blobs     BlobStore
	cache     *cache.ResultCache
	notifier  notify.Notifier
	http      *http.Client
	retrier   *retry.Retrier
	logger    *slog.Logger
}

// NewWorker creates a replacement worker.
func NewWorker(generator ReplacementGenerator, blobs BlobStore, resultCache *cache.ResultCache, notifier notify.Notifier, retrier *retry.Retrier, logger *slog.Logger) *Worker {
	if retrier == nil {
		retrier = retry.New(retry.DefaultPolicy(), retry.Transient, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		generator: generator,
		blobs:     blobs,
		cache:     resultCache,
		notifier:  notifier,
		http:      &http.Client{Timeout: 60 * time.Second},
		retrier:   retrier,
		logger:    logger,
	}
}

// HandleJob processes one replacement job end to end. It always resolves the
// job: success caches the replacement URL, failure caches the original. The
// returned error is non-nil only when the context is cancelled, in which
// case the job stays pending for redelivery.
func (w *Worker) HandleJob(ctx context.Context, job queue.ReplacementJob) error {
	resultURL, err := w.generate(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Error("replacement failed, caching original",
			"job", job.JobID,
			"image", job.ImageURL,
			"error", err,
		)
		w.resolve(ctx, job, job.ImageURL)
		return nil
	}

	w.logger.Info("replacement ready",
		"job", job.JobID,
		"image", job.ImageURL,
		"result", resultURL,
	)
	w.resolve(ctx, job, resultURL)
	return nil
}

func (w *Worker) generate(ctx context.Context, job queue.ReplacementJob) (string, error) {
	source, _, err := downloadImage(ctx, w.http, w.retrier, job.ImageURL)
	if err != nil {
		return "", fmt.Errorf("downloading source: %w", err)
	}

	replacement, err := w.generator.GenerateReplacement(ctx, source, job.FilterText)
	if err != nil {
		return "", fmt.Errorf("generating replacement: %w", err)
	}

	if replacement.URL != "" {
		return replacement.URL, nil
	}
	if len(replacement.Data) == 0 {
		return "", fmt.Errorf("generator returned neither url nor data")
	}

	name := fmt.Sprintf("replacement-%s.png", uuid.NewString())
	url, err := w.blobs.Store(ctx, name, replacement.Data)
	if err != nil {
		return "", fmt.Errorf("storing replacement: %w", err)
	}
	return url, nil
}

func (w *Worker) resolve(ctx context.Context, job queue.ReplacementJob, resultURL string) {
	w.cache.Set(ctx, job.ImageURL, []string{job.FilterText}, resultURL)

	err := w.notifier.Notify(ctx, notify.Event{
		UserID:    job.UserID,
		ImageURL:  job.ImageURL,
		ResultURL: resultURL,
	})
	if err != nil {
		w.logger.Error("notification failed", "job", job.JobID, "user", job.UserID, "error", err)
	}
}
