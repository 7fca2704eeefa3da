// Copyright 2025 Lodestone AI
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

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lodestone-ai/corpusflow"
	"github.com/lodestone-ai/corpusflow/ai"
	"github.com/lodestone-ai/corpusflow/ai/openai"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/ingest"
	"github.com/lodestone-ai/corpusflow/search"
	"github.com/lodestone-ai/corpusflow/storage/badger"
)

func main() {
	app := &cli.App{
		Name:  "corpusflow",
		Usage: "Embedding ingestion pipeline for document corpora",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one ingestion batch over the corpus",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "corpus",
						Aliases:  []string{"c"},
						Usage:    "Path to the corpus root directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "resume",
						Usage: "Execution ID of an interrupted batch to resume",
					},
					&cli.IntFlag{
						Name:  "ceiling",
						Usage: "Maximum number of documents processed concurrently",
						Value: 2,
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Per-document attempt budget, counting the first attempt",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.DurationFlag{
						Name:  "item-timeout",
						Usage: "Wall-clock budget per document, zero disables",
						Value: 2 * time.Minute,
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Target chunk length in characters",
						Value: 1000,
					},
					&cli.IntFlag{
						Name:  "chunk-overlap",
						Usage: "Characters shared by consecutive chunks",
						Value: 200,
					},
					&cli.StringFlag{
						Name:  "results-dir",
						Usage: "Directory for manifest and result files",
						Value: "results",
					},
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Vector collection name",
						Value: "documents",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
						Value: "embeddinggemma",
					},
					&cli.IntFlag{
						Name:  "embedding-dimensions",
						Usage: "Embedding vector length",
						Value: 768,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show the durable record and per-document results of a batch",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "execution-id",
						Aliases:  []string{"e"},
						Usage:    "Execution ID of the batch",
						Required: true,
					},
				},
			},
			{
				Name:   "query",
				Usage:  "Search the vector store",
				Action: queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
						Value: "embeddinggemma",
					},
					&cli.IntFlag{
						Name:  "embedding-dimensions",
						Usage: "Embedding vector length",
						Value: 768,
					},
					&cli.IntFlag{
						Name:    "max-hits",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   5,
					},
				},
			},
			{
				Name:   "purge",
				Usage:  "Drop every stored chunk and reset the change cache",
				Action: purgeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation prompt",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCommand(c *cli.Context) error {
	ctx := context.Background()

	config := ingest.DefaultConfig()
	config.Ceiling = c.Int("ceiling")
	config.MaxAttempts = c.Int("max-attempts")
	config.RetryBaseDelay = c.Duration("retry-delay")
	config.ItemTimeout = c.Duration("item-timeout")
	config.ChunkSize = c.Int("chunk-size")
	config.ChunkOverlap = c.Int("chunk-overlap")
	config.ResultsDir = c.String("results-dir")
	config.Collection = c.String("collection")
	config.Model = c.String("embedding-model")
	config.Dimensions = c.Int("embedding-dimensions")
	if err := config.Validate(); err != nil {
		return err
	}

	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
		ai.WithDimensions(c.Int("embedding-dimensions")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid embedding configuration: %w", err)
	}

	engine, err := corpusflow.NewEngine(
		c.String("db"),
		c.String("corpus"),
		corpusflow.WithConfig(config),
		corpusflow.WithEmbeddingConfig(aiConfig),
		corpusflow.WithProgressWriter(os.Stderr),
	)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer engine.Close()

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Corpus: %s\n", c.String("corpus"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(os.Stderr)

	var record *core.BatchRecord
	if executionID := c.String("resume"); executionID != "" {
		record, err = engine.Resume(ctx, executionID)
	} else {
		record, err = engine.Run(ctx)
	}
	if record != nil {
		fmt.Printf("Execution %s: %s\n", record.ExecutionID, record.Stage)
		if record.ResultPath != "" {
			fmt.Printf("Results: %s\n", record.ResultPath)
		}
	}
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()

	backend, err := badger.OpenBackend(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	batches := badger.NewBatchRepository(backend)
	defer batches.Close()

	executionID := c.String("execution-id")
	record, err := batches.GetBatch(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load batch %s: %w", executionID, err)
	}
	results, err := batches.GetResults(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load results for %s: %w", executionID, err)
	}

	fmt.Printf("Execution %s: %s\n", record.ExecutionID, record.Stage)
	fmt.Printf("Started: %s\n", record.StartedAt.Format(time.RFC3339))
	fmt.Printf("Updated: %s\n", record.UpdatedAt.Format(time.RFC3339))
	if record.ManifestPath != "" {
		fmt.Printf("Manifest: %s\n", record.ManifestPath)
	}
	if record.ResultPath != "" {
		fmt.Printf("Results: %s\n", record.ResultPath)
	}

	var succeeded, failed, skipped int
	for _, result := range results {
		switch result.Outcome {
		case core.OutcomeSucceeded:
			succeeded++
		case core.OutcomeFailed:
			failed++
		case core.OutcomeSkipped:
			skipped++
		}
	}
	fmt.Printf("Recorded: %d (%d succeeded, %d failed, %d skipped)\n",
		len(results), succeeded, failed, skipped)

	for _, result := range results {
		if result.Outcome == core.OutcomeFailed {
			fmt.Printf("  failed: %s: %s\n", result.URI, result.Error)
		}
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() == 0 {
		return fmt.Errorf("query text is required")
	}
	query := strings.Join(c.Args().Slice(), " ")

	backend, err := badger.OpenBackend(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	vectors := badger.NewVectorRepository(backend)
	defer vectors.Close()

	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
		ai.WithDimensions(c.Int("embedding-dimensions")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid embedding configuration: %w", err)
	}
	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	searcher, err := search.NewSearcher(vectors, embedder)
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	matches, err := searcher.Search(ctx, query, c.Int("max-hits"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(matches))
	for i, hit := range matches {
		fmt.Printf("%d: %s#%d [%0.3f]\n", i, hit.Chunk.SourceURI, hit.Chunk.Position, hit.Score)
		fmt.Printf("   %s\n", hit.Chunk.Text)
	}
	return nil
}

func purgeCommand(c *cli.Context) error {
	ctx := context.Background()

	if !c.Bool("yes") {
		fmt.Fprintf(os.Stderr, "Purge every stored chunk and cache entry in %s? [y/N] ", c.String("db"))
		var answer string
		fmt.Fscanln(os.Stdin, &answer)
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	backend, err := badger.OpenBackend(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	vectors := badger.NewVectorRepository(backend)
	defer vectors.Close()
	cache := badger.NewCacheRepository(backend)
	defer cache.Close()

	if err := vectors.Purge(ctx); err != nil {
		return fmt.Errorf("failed to purge vectors: %w", err)
	}

	var uris []string
	err = cache.Scan(ctx, func(entry *core.CacheEntry) error {
		uris = append(uris, entry.URI)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan cache: %w", err)
	}
	for _, uri := range uris {
		if err := cache.Delete(ctx, uri); err != nil {
			return fmt.Errorf("failed to delete cache entry %s: %w", uri, err)
		}
	}

	fmt.Printf("Purged vector store and %d cache entries\n", len(uris))
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
