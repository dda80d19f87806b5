// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command qualisight starts the quality-inspection query API server.
//
// The server answers natural-language questions about incoming inspection,
// laboratory tests, and production tracking by matching them against an
// authored rule library and executing parameterized query templates.
//
// Usage:
//
//	go run ./cmd/qualisight serve
//	go run ./cmd/qualisight serve --port 9090 --rules ./rules.yaml
//	go run ./cmd/qualisight validate-rules --rules ./rules.yaml
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/inspect/health
//
//	# Ask a question
//	curl -X POST http://localhost:8080/v1/inspect/query \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "查询聚龙供应商的库存"}'
//
//	# Inspect the loaded rule set
//	curl http://localhost:8080/v1/inspect/rules | jq
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/qualisight/qualisight/services/datastore"
	"github.com/qualisight/qualisight/services/inspect"
	"github.com/qualisight/qualisight/services/inspect/config"
	"github.com/qualisight/qualisight/services/inspect/engine"
	"github.com/qualisight/qualisight/services/inspect/rules"
)

var (
	flagPort      int
	flagDebug     bool
	flagDataDir   string
	flagRulesPath string
	flagCachePath string
	flagSeed      bool
	flagQueryRate float64
)

func main() {
	root := &cobra.Command{
		Use:   "qualisight",
		Short: "Quality-inspection query engine",
		Long:  "QualiSight answers natural-language questions about quality inspection data through an authored rule library.",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the query API server",
		RunE:  runServe,
	}
	serve.Flags().IntVar(&flagPort, "port", 8080, "Port to listen on")
	serve.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug mode")
	serve.Flags().StringVar(&flagDataDir, "data-dir", defaultDataDir(), "Data directory for the inspection database")
	serve.Flags().StringVar(&flagRulesPath, "rules", "", "Rule file path (empty = embedded defaults)")
	serve.Flags().StringVar(&flagCachePath, "cache-dir", "", "Answer cache directory (empty = caching disabled)")
	serve.Flags().BoolVar(&flagSeed, "seed", false, "Seed sample data when the database is empty")
	serve.Flags().Float64Var(&flagQueryRate, "query-rate", 50, "Query endpoint rate limit (requests/second, 0 = unlimited)")

	validateRules := &cobra.Command{
		Use:   "validate-rules",
		Short: "Validate a rule file without starting the server",
		RunE:  runValidateRules,
	}
	validateRules.Flags().StringVar(&flagRulesPath, "rules", "", "Rule file path (empty = embedded defaults)")

	root.AddCommand(serve, validateRules)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return home + "/.qualisight"
}

func runServe(cmd *cobra.Command, args []string) error {
	if flagDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := slog.Default()

	// W3C TraceContext propagation so dashboard traces flow through handlers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cfg, err := config.LoadEngineConfig()
	if err != nil {
		return fmt.Errorf("loading engine config: %w", err)
	}

	store, err := datastore.Open(flagDataDir, logger)
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer store.Close()

	if flagSeed {
		if err := store.SeedSampleData(cmd.Context()); err != nil {
			return fmt.Errorf("seeding sample data: %w", err)
		}
	}

	ruleStore := rules.NewStore(rules.NewYAMLSource(flagRulesPath), cfg.MinTriggerRuneLen, logger)
	if err := ruleStore.Load(cmd.Context()); err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	// Answer cache: graceful degradation. Without a cache directory the
	// server runs uncached rather than refusing to start.
	var cache engine.AnswerCache
	if flagCachePath != "" {
		badgerCache, err := engine.OpenBadgerAnswerCache(flagCachePath, cfg.AnswerCacheTTL, logger)
		if err != nil {
			logger.Warn("answer cache unavailable, caching disabled",
				slog.String("path", flagCachePath),
				slog.String("error", err.Error()),
			)
		} else {
			cache = badgerCache
			defer badgerCache.Close()
			logger.Info("answer cache opened", slog.String("path", flagCachePath))
		}
	}

	extractor := engine.NewExtractor(config.MustLoadEntityDictionaries(), logger)
	executor := engine.NewExecutor(store.DB(), datastore.NewMemoryDatasets(), engine.ExecutorConfig{
		RowCap:        cfg.RowCap,
		Timeout:       cfg.QueryTimeout,
		MaxConcurrent: cfg.MaxConcurrentQueries,
	}, logger)

	service := inspect.NewService(ruleStore, extractor, executor, cache, logger)
	handlers := inspect.NewHandlers(service, cfg.MinTriggerRuneLen, logger)

	var limiter *rate.Limiter
	if flagQueryRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(flagQueryRate), int(flagQueryRate)*2)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("qualisight"))
	if flagDebug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	inspect.RegisterRoutes(v1, handlers, limiter)

	// Hot reload on rule file changes. Only meaningful with a file source.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if flagRulesPath != "" {
		go func() {
			if err := rules.WatchFile(watchCtx, ruleStore, flagRulesPath, logger); err != nil {
				logger.Warn("rule file watcher stopped",
					slog.String("path", flagRulesPath),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	addr := fmt.Sprintf(":%d", flagPort)
	srv := &http.Server{Addr: addr, Handler: router}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down qualisight server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", slog.String("error", err.Error()))
		}
	}()

	snap := ruleStore.Snapshot()
	logger.Info("starting qualisight server",
		slog.String("address", addr),
		slog.String("snapshot_version", snap.Version),
		slog.Int("active_rules", len(snap.Active)),
		slog.Int("rejected_rules", len(snap.Rejected)),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func runValidateRules(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadEngineConfig()
	if err != nil {
		return fmt.Errorf("loading engine config: %w", err)
	}

	source := rules.NewYAMLSource(flagRulesPath)
	loaded, err := source.LoadRules(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading rules from %s: %w", source.Describe(), err)
	}

	failures := 0
	for i := range loaded {
		result := rules.ValidateRule(&loaded[i], cfg.MinTriggerRuneLen)
		if result.OK {
			fmt.Printf("ok\trule %d (%s)\n", loaded[i].ID, loaded[i].Name)
			continue
		}
		failures++
		fmt.Printf("FAIL\trule %d (%s): %s\n", loaded[i].ID, loaded[i].Name, result.Reason)
	}

	fmt.Printf("\n%d rules checked, %d failed\n", len(loaded), failures)
	if failures > 0 {
		return fmt.Errorf("%d rules failed validation", failures)
	}
	return nil
}
