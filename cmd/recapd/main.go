// Copyright 2025 The recapd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command recapd is the transcript summarization service.
//
// Usage:
//
//	recapd serve --config config.yaml
//	recapd validate --config config.yaml
//	recapd version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/recapd/recapd"
	"github.com/recapd/recapd/pkg/cache"
	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/embedders"
	"github.com/recapd/recapd/pkg/llms"
	"github.com/recapd/recapd/pkg/logger"
	"github.com/recapd/recapd/pkg/observability"
	"github.com/recapd/recapd/pkg/pipeline"
	"github.com/recapd/recapd/pkg/qa"
	"github.com/recapd/recapd/pkg/ratelimit"
	"github.com/recapd/recapd/pkg/retrieval"
	"github.com/recapd/recapd/pkg/server"
	"github.com/recapd/recapd/pkg/store"
	"github.com/recapd/recapd/pkg/transcript"
	"github.com/recapd/recapd/pkg/vector"
	"github.com/recapd/recapd/pkg/websearch"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the summarization server."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(recapd.GetVersion().String())
	return nil
}

// ValidateCmd loads the configuration and reports the first problem.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate command")
	}
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("Configuration %s is valid\n", cli.Config)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	if err := initLogging(cli, cfg); err != nil {
		return err
	}
	log := logger.GetLogger()

	tracerShutdown, err := observability.InitTracer(ctx, &cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metrics := observability.NewMetrics()

	provider, err := llms.NewProvider(ctx, &cfg.Providers.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	defer provider.Close()

	// Token counting is best effort: the encoding may need a download on
	// first use, and summarization degrades to untruncated prompts without it.
	tokens, err := llms.NewTokenCounter(cfg.Providers.LLM.Model)
	if err != nil {
		log.Warn("token counter unavailable, prompt truncation disabled", "error", err)
		tokens = nil
	}

	source, err := transcript.NewHTTPSource(&cfg.Providers.Transcript)
	if err != nil {
		return fmt.Errorf("failed to create transcript source: %w", err)
	}

	search, err := websearch.NewHTTPProvider(&cfg.Providers.Search)
	if err != nil {
		return fmt.Errorf("failed to create search provider: %w", err)
	}

	// Retrieval powers question answering. A misconfigured embedder or
	// vector backend disables it rather than blocking summarization.
	var index *retrieval.Index
	if embedder, err := embedders.NewEmbedder(&cfg.Providers.Embedder); err != nil {
		log.Warn("retrieval disabled: embedder unavailable", "error", err)
	} else if vectors, err := vector.NewProvider(&cfg.Retrieval, cfg.Providers.Embedder.Dimension); err != nil {
		log.Warn("retrieval disabled: vector backend unavailable", "error", err)
	} else if index, err = retrieval.NewIndex(&cfg.Retrieval, vectors, embedder); err != nil {
		log.Warn("retrieval disabled", "error", err)
		index = nil
	}

	var indexer pipeline.Indexer
	if index != nil {
		indexer = index
	}
	stages := []pipeline.Stage{
		pipeline.NewExtractStage(source, indexer, log),
		pipeline.NewSummarizeStage(provider, tokens, &cfg.Pipeline, log),
		pipeline.NewResearchStage(search, &cfg.Pipeline, log),
		pipeline.NewFactCheckStage(&cfg.Pipeline, log),
		pipeline.NewCiteStage(&cfg.Pipeline, log),
	}
	engine := pipeline.NewEngine(&cfg.Pipeline, stages, log,
		pipeline.WithTracer(observability.Tracer("pipeline")),
		pipeline.WithStageObserver(metrics))

	cacheStore := cache.NewMemoryStore(time.Duration(cfg.Cache.TTLSeconds) * time.Second)

	limiter, err := ratelimit.New(&cfg.RateLimit, ratelimit.NewMemoryStore())
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	serviceOpts := []pipeline.ServiceOption{pipeline.WithCacheObserver(metrics)}
	serverOpts := []server.Option{
		server.WithMetrics(metrics),
		server.WithLimiter(limiter),
	}

	if cfg.Database.IsEnabled() {
		sqlStore, err := store.New(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open result store: %w", err)
		}
		defer func() {
			if err := sqlStore.Close(); err != nil {
				log.Warn("result store close failed", "error", err)
			}
		}()
		serviceOpts = append(serviceOpts, pipeline.WithResultStore(sqlStore))
		serverOpts = append(serverOpts, server.WithConversationStore(sqlStore))
		log.Info("result persistence enabled", "driver", cfg.Database.Driver)
	}

	service := pipeline.NewService(engine, cacheStore, &cfg.Cache, limiter, log, serviceOpts...)

	var qaEngine *qa.Engine
	if index != nil {
		qaEngine, err = qa.NewEngine(index, provider, &cfg.QA, log)
		if err != nil {
			return fmt.Errorf("failed to create question answering engine: %w", err)
		}
	}

	srv := server.New(&cfg.Server, service, qaEngine, log, serverOpts...)

	log.Info("recapd starting",
		"version", recapd.Version,
		"address", cfg.Server.Address(),
		"llm", cfg.Providers.LLM.Model,
		"retrieval", index != nil)

	return srv.Run(ctx)
}

// initLogging applies CLI flags over the config file's logging section.
func initLogging(cli *CLI, cfg *config.Config) error {
	level := cfg.Logging.Level
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	format := cfg.Logging.Format
	if cli.LogFormat != "" {
		format = cli.LogFormat
	}
	path := cfg.Logging.File
	if cli.LogFile != "" {
		path = cli.LogFile
	}

	output := os.Stderr
	if path != "" {
		file, _, err := logger.OpenLogFile(path)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
	}
	logger.Init(logger.ParseLevel(level), output, format)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("recapd"),
		kong.Description("recapd - transcript summarization and question answering service"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
