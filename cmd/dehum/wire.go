package main

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tyrz939/dehum-assistant/internal/catalog"
	"github.com/tyrz939/dehum-assistant/internal/client"
	"github.com/tyrz939/dehum-assistant/internal/config"
	"github.com/tyrz939/dehum-assistant/internal/orchestrator"
	"github.com/tyrz939/dehum-assistant/internal/provider"
	"github.com/tyrz939/dehum-assistant/internal/provider/anthropic"
	"github.com/tyrz939/dehum-assistant/internal/provider/openai"
	"github.com/tyrz939/dehum-assistant/internal/rag"
	"github.com/tyrz939/dehum-assistant/internal/session"
	"github.com/tyrz939/dehum-assistant/internal/tool"
)

// app bundles everything a command needs after wiring.
type app struct {
	cfg   *config.Config
	orch  *orchestrator.Orchestrator
	store session.Store
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildApp wires the configured provider, store, catalog, and retriever into
// an orchestrator.
func buildApp() (*app, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}

	if cfg.APIKey() == "" {
		return nil, fmt.Errorf("no API key for provider %s (set OPENAI_API_KEY or ANTHROPIC_API_KEY)", cfg.Provider)
	}

	var llm provider.LLMProvider
	switch cfg.Provider {
	case "anthropic":
		llm = anthropic.NewClientFromEnv(cfg.AnthropicKey, "anthropic")
	default:
		llm = openai.NewClientFromEnv(cfg.OpenAIKey, cfg.OpenAIBaseURL, "openai")
	}

	engine := &client.Client{
		Provider:    llm,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if rpm := cfg.RequestsPerMinute; rpm > 0 {
		engine.Limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.ProductDB)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load product catalog: %w", err)
	}

	retriever, err := rag.Index(cfg.CorpusDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("index documentation corpus: %w", err)
	}

	exec := tool.NewExecutor(tool.NewDehumRegistry(cat, retriever))

	var opts []orchestrator.Option
	if d := cfg.TurnTimeout(); d > 0 {
		opts = append(opts, orchestrator.WithTurnTimeout(d))
	}

	return &app{
		cfg:   cfg,
		orch:  orchestrator.New(engine, exec, store, cat, opts...),
		store: store,
	}, nil
}

func buildStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		return session.NewSQLiteStore(cfg.Store.SQLitePath)
	case config.StoreWordPress:
		return session.NewRemoteStore(cfg.Store.SiteURL, cfg.Store.APIKey), nil
	default:
		return session.NewMemoryStore(), nil
	}
}
