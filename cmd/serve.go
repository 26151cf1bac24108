package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/ai"
	"github.com/spigell/search-evaluator/internal/ai/gemini"
	"github.com/spigell/search-evaluator/internal/ai/openai"
	"github.com/spigell/search-evaluator/internal/evaluation"
	"github.com/spigell/search-evaluator/internal/imagesearch"
	"github.com/spigell/search-evaluator/internal/logger"
	"github.com/spigell/search-evaluator/internal/metrics"
	"github.com/spigell/search-evaluator/internal/queryinfo"
	"github.com/spigell/search-evaluator/internal/resilience"
	"github.com/spigell/search-evaluator/internal/secrets"
	"github.com/spigell/search-evaluator/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evaluation HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("address", "a", "", "listen address (default :8000)")
	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), zap.String("service", app))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the search-evaluator",
		zap.String("version", version),
		zap.String("provider", config.AI.Provider),
		zap.String("environment", config.Server.Environment),
	)

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("creating a model client", zap.Error(err))
	}

	registry := metrics.New(app)

	images, err := newImageService(config.Image, registry, logger)
	if err != nil {
		logger.Fatal("creating an image service", zap.Error(err))
	}

	evaluator := evaluation.NewEvaluator(generator, logger,
		evaluation.WithRecorder(registry),
		evaluation.WithBatchConcurrency(config.Evaluation.BatchConcurrency),
		evaluation.WithMaxLogLength(config.AI.MaxLogLength),
	)

	srv, err := server.New(ctx, server.Config{
		Environment: config.Server.Environment,
		StaticDir:   config.Server.StaticDir,
		CORSOrigins: config.Server.CORSOrigins,
	}, server.Dependencies{
		Evaluator: evaluator,
		Images:    images,
		Queries:   queryinfo.NewService(generator, images, logger),
		Metrics:   registry,
	}, logger)
	if err != nil {
		logger.Fatal("creating the http server", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:         config.Server.Address,
		Handler:      srv.Handler(),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newGenerator builds the model client for the configured provider. A missing
// credential is an error so the service never starts without one.
func newGenerator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Generator, error) {
	if cfg == nil {
		return nil, errors.New("ai configuration is required")
	}

	switch provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider {
	case "", ai.ProviderGemini:
		gcfg := cfg.Gemini
		if gcfg == nil {
			gcfg = &GeminiConfig{}
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: gcfg.APIKey,
			File:  gcfg.APIKeyFile,
			Env:   "GEMINI_API_KEY",
			Hint:  "set GEMINI_API_KEY, ai.gemini.api-key or ai.gemini.api-key-file",
		})
		if err != nil {
			return nil, err
		}
		generator, err := gemini.NewGenerator(ctx, apiKey, gcfg.Model, log)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return generator, nil

	case ai.ProviderOpenAI:
		ocfg := cfg.OpenAI
		if ocfg == nil {
			ocfg = &OpenAIConfig{}
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: ocfg.APIKey,
			File:  ocfg.APIKeyFile,
			Env:   "OPENAI_API_KEY",
			Hint:  "set OPENAI_API_KEY, ai.openai.api-key or ai.openai.api-key-file",
		})
		if err != nil {
			return nil, err
		}
		generator, err := openai.NewGenerator(apiKey, ocfg.BaseURL, ocfg.Model, log)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return generator, nil

	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// newImageService wires the image search client when a key is available.
// Without one the service answers with keyword fallback URLs only.
func newImageService(cfg *ImageConfig, recorder imagesearch.Recorder, log *zap.Logger) (*imagesearch.Service, error) {
	if cfg == nil {
		cfg = &ImageConfig{}
	}
	log = logger.WithFields(log)

	apiKey, err := secrets.LoadOptional(secrets.Source{
		Name:  "image api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "UNSPLASH_ACCESS_KEY",
	})
	if err != nil {
		return nil, err
	}

	var searcher imagesearch.Searcher
	if apiKey != "" {
		retry := resilience.DefaultConfig()
		retry.RetryMaxAttempts = cfg.RetryMaxAttempts
		searcher = imagesearch.NewClient(imagesearch.ClientConfig{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Retry:   retry,
		}, log)
	} else {
		log.Warn("image api key is not configured, image search falls back to keyword urls")
	}

	return imagesearch.NewService(searcher, imagesearch.ServiceConfig{
		FallbackURL:    cfg.FallbackURL,
		PlaceholderURL: cfg.PlaceholderURL,
	}, recorder, log), nil
}
