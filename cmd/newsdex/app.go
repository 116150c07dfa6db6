package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/newsdex/internal/config"
	dbRedis "github.com/kailas-cloud/newsdex/internal/db/redis"
	"github.com/kailas-cloud/newsdex/internal/domain"
	logpkg "github.com/kailas-cloud/newsdex/internal/logger"
	"github.com/kailas-cloud/newsdex/internal/metrics"
	articlerepo "github.com/kailas-cloud/newsdex/internal/repository/article"
	"github.com/kailas-cloud/newsdex/internal/repository/embcache"
	"github.com/kailas-cloud/newsdex/internal/telemetry"
	"github.com/kailas-cloud/newsdex/internal/transport/gazetteer"
	"github.com/kailas-cloud/newsdex/internal/transport/ocr"
	openaiTransport "github.com/kailas-cloud/newsdex/internal/transport/openai"
	"github.com/kailas-cloud/newsdex/internal/version"
	aggregateuc "github.com/kailas-cloud/newsdex/internal/usecase/aggregate"
	corpusuc "github.com/kailas-cloud/newsdex/internal/usecase/corpus"
	embeddinguc "github.com/kailas-cloud/newsdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/newsdex/internal/usecase/health"
	"github.com/kailas-cloud/newsdex/internal/usecase/rectify"
	searchuc "github.com/kailas-cloud/newsdex/internal/usecase/search"
	"github.com/kailas-cloud/newsdex/internal/usecase/vectorcache"
)

const embeddingTimeout = 10 * time.Second

// app is the composition root shared by the server and the CLI commands.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *dbRedis.Store
	telemetry *telemetry.Telemetry
	cache     *vectorcache.Cache // nil when disabled
	articles  *articlerepo.Repo

	search    *searchuc.Service
	aggregate *aggregateuc.Service
	health    *healthuc.Service
}

func loadConfig() (config.Config, string, error) {
	env := config.GetEnv()
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		return cfg, env, err
	}
	cfg, err := config.Load(env)
	return cfg, env, err
}

// newApp wires storage, collaborators and use cases. Call close when done.
func newApp(ctx context.Context) (*app, error) {
	cfg, env, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	tel := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version.Version,
	}, logger)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, store: store, telemetry: tel}

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		a.close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}

	repo := articlerepo.New(store, cfg.Storage.KeyPrefix, cfg.Storage.IndexName)
	if err := repo.EnsureIndex(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("ensure index: %w", err)
	}
	a.articles = repo
	corpus := corpusuc.New(repo, logger)

	rectifier, err := rectify.New(rectify.Options{
		MinRelevance: cfg.Rectify.MinRelevance,
		Filter:       cfg.Rectify.FilterEnabled(),
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create rectifier: %w", err)
	}

	chatCfg := &openaiTransport.ChatConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Logger:  logger,
	}

	ner, err := buildNER(cfg, chatCfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		improver   searchuc.Improver
		llmChecker healthuc.ProviderChecker
	)
	if cfg.LLM.Enabled {
		imp := openaiTransport.NewImprover(chatCfg)
		improver, llmChecker = imp, imp
	}

	var (
		cache      searchuc.Cache
		embChecker healthuc.ProviderChecker
	)
	switch {
	case cfg.Cache.Enabled && cfg.Embedding.APIKey == "":
		logger.Warn("Query cache disabled: no embedding API key configured")
	case cfg.Cache.Enabled:
		emb := buildEmbedder(cfg, store, logger)
		a.cache, err = vectorcache.New(emb, vectorcache.Options{
			AcceptThreshold: cfg.Cache.AcceptThreshold,
			DedupThreshold:  cfg.Cache.DedupThreshold,
			TTL:             time.Duration(cfg.Cache.TTLSec) * time.Second,
			MaxCandidates:   cfg.Cache.MaxCandidates,
		}, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create vector cache: %w", err)
		}
		cache, embChecker = a.cache, emb
	}

	required, err := cfg.Search.Required()
	if err != nil {
		a.close()
		return nil, err
	}

	a.search = searchuc.New(repo, ner, improver, cache, searchuc.Options{
		Required:         required,
		MaxCandidates:    cfg.Search.MaxCandidates,
		LowSignal:        searchuc.LowSignalPolicy(cfg.Search.LowSignalPolicy),
		ConfidenceFloor:  cfg.LLM.ConfidenceFloor,
		ContextThreshold: cfg.Cache.ContextThreshold,
		LLMLimiter:       rate.NewLimiter(rate.Limit(cfg.LLM.RatePerSec), cfg.LLM.Burst),
	}, logger)

	extractor := ocr.New(ocr.Config{
		TesseractBin: cfg.OCR.TesseractBin,
		PdftotextBin: cfg.OCR.PdftotextBin,
		PdftoppmBin:  cfg.OCR.PdftoppmBin,
		Language:     cfg.OCR.Language,
		Timeout:      time.Duration(cfg.OCR.TimeoutSec) * time.Second,
		Logger:       logger,
	})
	a.aggregate = aggregateuc.New(extractor, ner, rectifier, corpus, repo, aggregateuc.Options{
		MinTextChars: cfg.Aggregate.MinTextChars,
		Workers:      cfg.Aggregate.Workers,
		Extensions:   cfg.Aggregate.Extensions,
	}, logger)

	a.health = healthuc.New(store, embChecker, llmChecker)

	logger.Info("newsdex initialized",
		zap.String("version", version.Version),
		zap.String("env", env),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("ner", cfg.NER.Provider),
		zap.Bool("llm", cfg.LLM.Enabled),
		zap.Bool("cache", a.cache != nil),
		zap.Bool("tracing", tel.Enabled()),
	)
	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("Telemetry shutdown failed", zap.Error(err))
	}
	a.store.Close()
	_ = a.logger.Sync()
}

func buildNER(
	cfg config.Config, chatCfg *openaiTransport.ChatConfig, logger *zap.Logger,
) (searchuc.Extractor, error) {
	switch cfg.NER.Provider {
	case config.NERLLM:
		return openaiTransport.NewNER(chatCfg), nil
	default:
		g, err := gazetteer.Load(cfg.NER.Gazetteer, logger)
		if err != nil {
			return nil, fmt.Errorf("load gazetteer: %w", err)
		}
		return g, nil
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) *embeddinguc.InstrumentedEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = embcache.New(base, store, embcache.Options{
		Prefix: cfg.Storage.KeyPrefix,
		Model:  cfg.Embedding.Model,
		TTL:    time.Duration(cfg.Embedding.CacheTTLSec) * time.Second,
	}, metrics.EmbeddingCacheTotal, logger)

	return embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, embeddingTimeout, logger,
	)
}
