package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/feedveil/feedveil/internal/filter"
	"github.com/feedveil/feedveil/internal/llm"
)

// ResultCache maps (resourceID, filter signature) to computed results. Each
// resource holds a bounded map of signature sub-keys; once full, writes for
// new signatures are silently dropped — a capacity cap, not an eviction
// policy. Get and Set never fail: store or model I/O errors degrade to a
// miss or an unacknowledged write.
type ResultCache struct {
	store       Store
	model       llm.Model
	ttl         time.Duration
	subKeyLimit int
	logger      *slog.Logger
}

// New creates a ResultCache. model may be nil to disable fuzzy matching.
func New(store Store, model llm.Model, ttl time.Duration, subKeyLimit int, logger *slog.Logger) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{
		store:       store,
		model:       model,
		ttl:         ttl,
		subKeyLimit: subKeyLimit,
		logger:      logger,
	}
}

// Get returns the cached value for the resource and filter set, or "" on a
// miss. A miss against a non-empty entry triggers one lightweight model call
// to pick the closest existing signature; the answer must name a known
// sub-key or the lookup stays a miss.
func (c *ResultCache) Get(ctx context.Context, resourceID string, filterTexts []string) string {
	signature := filter.Signature(filterTexts)
	entry := c.loadEntry(ctx, resourceID)
	if entry == nil {
		return ""
	}

	if value, ok := entry[signature]; ok {
		return value
	}

	return c.fuzzyLookup(ctx, entry, signature)
}

// Set stores the value under the resource and filter signature. It reports
// whether the entry was persisted; a full sub-key map still persists (and
// refreshes the TTL of) the existing entry without adding the new signature.
func (c *ResultCache) Set(ctx context.Context, resourceID string, filterTexts []string, value string) bool {
	signature := filter.Signature(filterTexts)
	entry := c.loadEntry(ctx, resourceID)
	if entry == nil {
		entry = make(map[string]string)
	}

	if len(entry) < c.subKeyLimit {
		entry[signature] = value
	} else if _, exists := entry[signature]; !exists {
		c.logger.Debug("cache entry full, dropping new sub-key",
			"resource", resourceID,
			"signature", signature,
			"limit", c.subKeyLimit)
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("encoding cache entry failed", "resource", resourceID, "error", err)
		return false
	}

	if err := c.store.Set(ctx, resourceID, string(encoded), c.ttl); err != nil {
		c.logger.Warn("cache write failed", "resource", resourceID, "error", err)
		return false
	}
	return true
}

func (c *ResultCache) loadEntry(ctx context.Context, resourceID string) map[string]string {
	raw, ok, err := c.store.Get(ctx, resourceID)
	if err != nil {
		c.logger.Warn("cache read failed", "resource", resourceID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var entry map[string]string
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss", "resource", resourceID, "error", err)
		return nil
	}
	return entry
}

// fuzzyLookup asks the model which existing sub-key best matches the wanted
// signature. Any failure, an empty answer, or an answer that is not an
// existing sub-key all count as a miss.
func (c *ResultCache) fuzzyLookup(ctx context.Context, entry map[string]string, signature string) string {
	if c.model == nil || len(entry) == 0 {
		return ""
	}

	keys := make([]string, 0, len(entry))
	for key := range entry {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	response, err := c.model.Prompt(ctx, llm.Request{
		User: fmt.Sprintf(llm.CacheKeyMatchPrompt, strings.Join(keys, ", "), signature),
	})
	if err != nil {
		c.logger.Warn("fuzzy cache match failed", "error", err)
		return ""
	}

	candidate := strings.TrimSpace(response)
	if candidate == "" {
		return ""
	}

	value, ok := entry[candidate]
	if !ok {
		c.logger.Debug("fuzzy match returned unknown sub-key", "candidate", candidate)
		return ""
	}
	return value
}
