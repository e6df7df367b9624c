package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobHandler processes a single replacement job.
type JobHandler interface {
	HandleJob(ctx context.Context, job ReplacementJob) error
}

// ConsumerConfig controls the stream reader.
type ConsumerConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	ConsumerName string
	BatchSize    int64
	BlockTimeout time.Duration
}

// Consumer reads replacement jobs from a Redis Stream consumer group and
// hands them to a JobHandler. Failed jobs are not acknowledged and will be
// redelivered.
type Consumer struct {
	client   *redis.Client
	config   ConsumerConfig
	handler  JobHandler
	logger   *slog.Logger
	shutdown chan struct{}
}

// NewConsumer creates a consumer for the configured stream.
func NewConsumer(config ConsumerConfig, handler JobHandler, logger *slog.Logger) (*Consumer, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, err
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:   redis.NewClient(opts),
		config:   config,
		handler:  handler,
		logger:   logger,
		shutdown: make(chan struct{}),
	}, nil
}

// Start ensures the consumer group exists and begins the read loop.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("starting job consumer",
		"stream", c.config.Stream,
		"group", c.config.Group,
		"consumer", c.config.ConsumerName,
	)

	go c.consumeLoop(ctx)
	return nil
}

// Stop shuts the read loop down and closes the connection.
func (c *Consumer) Stop() {
	close(c.shutdown)
	c.client.Close()
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "0").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("job consumer context cancelled, stopping")
			return
		case <-c.shutdown:
			c.logger.Info("job consumer shutdown requested, stopping")
			return
		default:
			if err := c.readAndProcess(ctx); err != nil {
				c.logger.Error("error reading job stream", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *Consumer) readAndProcess(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Group,
		Consumer: c.config.ConsumerName,
		Streams:  []string{c.config.Stream, ">"},
		Count:    c.config.BatchSize,
		Block:    c.config.BlockTimeout,
	}).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			job, ok := c.parseJob(message)
			if !ok {
				// Malformed messages are acknowledged so they do not wedge
				// the pending list.
				c.ack(ctx, message.ID)
				continue
			}

			if err := c.handler.HandleJob(ctx, job); err != nil {
				c.logger.Error("job failed",
					"message_id", message.ID,
					"job_id", job.JobID,
					"error", err,
				)
				continue
			}

			c.ack(ctx, message.ID)
		}
	}
	return nil
}

func (c *Consumer) ack(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.config.Stream, c.config.Group, messageID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "message_id", messageID, "error", err)
	}
}

func (c *Consumer) parseJob(message redis.XMessage) (ReplacementJob, bool) {
	raw, ok := message.Values["payload"].(string)
	if !ok {
		c.logger.Warn("job message missing payload", "message_id", message.ID)
		return ReplacementJob{}, false
	}

	var job ReplacementJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.logger.Warn("job payload corrupt", "message_id", message.ID, "error", err)
		return ReplacementJob{}, false
	}
	return job, true
}
