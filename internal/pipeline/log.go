package pipeline

import (
	"context"
	"log/slog"
)

// ProcessingRecord summarizes one processed post for the audit trail.
type ProcessingRecord struct {
	UserID             string
	Platform           string
	ContentHash        string
	MatchedFilterTexts []string
	DurationMs         int64
}

// ProcessingLog receives per-post records. Delivery is best effort and off
// the request's critical path; implementations must not block.
type ProcessingLog interface {
	Record(ctx context.Context, record ProcessingRecord)
}

// SlogProcessingLog writes records to the structured log.
type SlogProcessingLog struct {
	logger *slog.Logger
}

// NewSlogProcessingLog creates a log-backed sink.
func NewSlogProcessingLog(logger *slog.Logger) *SlogProcessingLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogProcessingLog{logger: logger}
}

func (l *SlogProcessingLog) Record(ctx context.Context, record ProcessingRecord) {
	l.logger.Info("post processed",
		"user", record.UserID,
		"platform", record.Platform,
		"content_hash", record.ContentHash,
		"matched_filters", record.MatchedFilterTexts,
		"duration_ms", record.DurationMs,
	)
}
