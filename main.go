package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/feedveil/feedveil/internal/cache"
	"github.com/feedveil/feedveil/internal/config"
	"github.com/feedveil/feedveil/internal/filter"
	"github.com/feedveil/feedveil/internal/imagepipe"
	"github.com/feedveil/feedveil/internal/llm"
	"github.com/feedveil/feedveil/internal/markup"
	"github.com/feedveil/feedveil/internal/notify"
	"github.com/feedveil/feedveil/internal/pipeline"
	"github.com/feedveil/feedveil/internal/platform"
	"github.com/feedveil/feedveil/internal/queue"
	"github.com/feedveil/feedveil/internal/retry"
)

var (
	apiKey       string
	configFile   string
	filtersFile  string
	userID       string
	platformName string
	outputFile   string
	debugMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "feedveil [feed-file]",
	Short: "Filter and transform social media feeds with AI",
	Long:  `Evaluates each post in a feed against a user's content filters and rewrites matched content in place.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			log.Fatal("API key required: use --api-key flag or ANTHROPIC_API_KEY environment variable")
		}

		settings, err := config.Load(configFile)
		if err != nil {
			log.Fatalf("Loading settings failed: %v", err)
		}
		logger := newLogger()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			log.Fatalf("Reading feed file failed: %v", err)
		}

		orchestrator, err := buildOrchestrator(settings, logger)
		if err != nil {
			log.Fatalf("Setup failed: %v", err)
		}

		adapter := chooseAdapter(raw)
		ctx := context.Background()

		posts, err := adapter.Parse(ctx, raw)
		if err != nil {
			log.Fatalf("Parsing feed failed: %v", err)
		}
		logger.Info("feed parsed", "platform", adapter.Platform(), "posts", len(posts))

		processed := orchestrator.ProcessFeed(ctx, userID, posts)

		encoded, err := json.MarshalIndent(processed, "", "  ")
		if err != nil {
			log.Fatalf("Encoding result failed: %v", err)
		}
		if outputFile != "" {
			if err := os.WriteFile(outputFile, encoded, 0o644); err != nil {
				log.Fatalf("Writing output failed: %v", err)
			}
		} else {
			fmt.Println(string(encoded))
		}
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the deferred image replacement worker",
	Run: func(cmd *cobra.Command, args []string) {
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}

		settings, err := config.Load(configFile)
		if err != nil {
			log.Fatalf("Loading settings failed: %v", err)
		}
		if settings.Worker.ReplacementEndpoint == "" {
			log.Fatal("worker.replacement_endpoint must be configured")
		}
		logger := newLogger()

		retrier := newRetrier(settings, logger)
		store, err := cache.NewRedisStore(settings.Redis.URL)
		if err != nil {
			log.Fatalf("Connecting to Redis failed: %v", err)
		}
		resultCache := cache.New(store, nil, settings.Cache.TTL, settings.Cache.SubKeyLimit, logger)

		var notifier notify.Notifier
		if settings.Redis.EventStream != "" {
			redisNotifier, err := notify.NewRedisNotifier(settings.Redis.URL, settings.Redis.EventStream)
			if err != nil {
				log.Fatalf("Connecting notifier failed: %v", err)
			}
			defer redisNotifier.Close()
			notifier = redisNotifier
		} else {
			notifier = notify.NewLogNotifier(logger)
		}

		blobs, err := imagepipe.NewLocalBlobStore(settings.Worker.BlobDir)
		if err != nil {
			log.Fatalf("Preparing blob store failed: %v", err)
		}
		generator := imagepipe.NewHTTPReplacementGenerator(
			settings.Worker.ReplacementEndpoint,
			os.Getenv("REPLACEMENT_API_KEY"),
			"gpt-image-1",
			retrier,
			logger,
		)
		worker := imagepipe.NewWorker(generator, blobs, resultCache, notifier, retrier, logger)

		consumer, err := queue.NewConsumer(queue.ConsumerConfig{
			RedisURL:     settings.Redis.URL,
			Stream:       settings.Redis.JobStream,
			Group:        settings.Redis.JobGroup,
			ConsumerName: "worker-" + uuid.NewString()[:8],
		}, worker, logger)
		if err != nil {
			log.Fatalf("Creating consumer failed: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("Starting consumer failed: %v", err)
		}
		<-ctx.Done()
		consumer.Stop()
		logger.Info("worker stopped")
	},
}

func buildOrchestrator(settings *config.Settings, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	retrier := newRetrier(settings, logger)

	model, err := llm.NewAnthropic(apiKey, settings.LLM.Model, settings.LLM.MaxTokens, settings.LLM.Temperature, retrier, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	store, err := cache.NewRedisStore(settings.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	resultCache := cache.New(store, model, settings.Cache.TTL, settings.Cache.SubKeyLimit, logger)

	jobQueue, err := queue.NewRedisQueue(settings.Redis.URL, settings.Redis.JobStream)
	if err != nil {
		return nil, fmt.Errorf("connecting job queue: %w", err)
	}

	analyzer := imagepipe.NewAnthropicVision(model, retrier, logger)
	images := imagepipe.NewPipeline(analyzer, nil, resultCache, jobQueue, logger)

	filterStore := filter.NewFileStore(filtersFile)
	build := func(mode string) (pipeline.Evaluator, pipeline.Transformer) {
		return filter.NewEvaluator(model, mode, logger), markup.NewTransformer(model, mode, logger)
	}

	limits := pipeline.Limits{
		MaxWorkers:         settings.Processing.MaxWorkers,
		MaxImagesPerPost:   settings.Processing.MaxImagesPerPost,
		MaxPostsWithImages: settings.Processing.MaxPostsWithImages,
	}
	return pipeline.NewOrchestrator(filterStore, filterStore, build, images, nil, limits, logger), nil
}

// chooseAdapter sniffs the document shape: Reddit listings are JSON objects,
// everything else goes through the generic HTML adapter.
func chooseAdapter(raw []byte) platform.Adapter {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return platform.NewRedditAdapter()
	}
	if platformName == "" {
		platformName = "generic"
	}
	return platform.NewHTMLAdapter(platformName, "")
}

func newRetrier(settings *config.Settings, logger *slog.Logger) *retry.Retrier {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = settings.Retry.MaxAttempts
	policy.BaseDelay = settings.Retry.BaseDelay
	policy.MaxDelay = settings.Retry.MaxDelay
	return retry.New(policy, retry.Transient, logger)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Anthropic API key")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "feedveil.yaml", "Path to settings file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&filtersFile, "filters", "filters.yaml", "Path to the user's filter file")
	rootCmd.Flags().StringVar(&userID, "user", "local", "User identifier for logging and notifications")
	rootCmd.Flags().StringVar(&platformName, "platform", "", "Platform name for HTML feeds")
	rootCmd.Flags().StringVar(&outputFile, "output", "", "Write the processed feed to a file instead of stdout")
	rootCmd.AddCommand(workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
