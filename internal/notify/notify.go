// Package notify announces finished image replacements to downstream
// renderers.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event reports the outcome of one deferred replacement. ResultURL is the
// replacement when the job succeeded and the original URL when it did not,
// so renderers can always resolve the image.
type Event struct {
	UserID    string
	ImageURL  string
	ResultURL string
}

// Notifier delivers completion events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// RedisNotifier publishes events to a Redis Stream.
type RedisNotifier struct {
	client *redis.Client
	stream string
}

// NewRedisNotifier connects to the given Redis URL and publishes to stream.
func NewRedisNotifier(url, stream string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisNotifier{client: redis.NewClient(opts), stream: stream}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	return n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"user_id":    event.UserID,
			"image_url":  event.ImageURL,
			"result_url": event.ResultURL,
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// LogNotifier records events to the log only. Used when no event stream is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.Info("image replacement ready",
		"user", event.UserID,
		"image", event.ImageURL,
		"result", event.ResultURL,
	)
	return nil
}

// MemoryNotifier collects events in process, for tests.
type MemoryNotifier struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryNotifier creates an empty in-memory notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Notify(ctx context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Events returns a copy of everything delivered so far.
func (n *MemoryNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}
