package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/user/wayfarer/internal/config"
	ctxengine "github.com/user/wayfarer/internal/context"
	"github.com/user/wayfarer/internal/gateway"
	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/runtime/tools"
	"github.com/user/wayfarer/internal/state"
	"github.com/user/wayfarer/internal/video"
	"github.com/user/wayfarer/pkg/llm"
	"github.com/user/wayfarer/pkg/llm/langchain"
	"github.com/user/wayfarer/pkg/llm/openai"
)

// app is the fully wired service shared by serve, ask and mcp.
type app struct {
	cfg           *config.Config
	registry      *runtime.Registry
	runtime       *runtime.Runtime
	messages      *state.MessageStore
	conversations *state.ConversationStore
	gateway       *gateway.Gateway
}

// newProvider builds the model client for the configured provider. model
// overrides cfg.LLM.Model when non-empty.
func newProvider(cfg *config.Config, model string) (llm.Provider, error) {
	lc := &llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
	if model != "" {
		lc.Model = model
	}

	switch cfg.LLM.Provider {
	case "", "openai":
		if lc.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key (or OPENAI_API_KEY) is required for the openai provider")
		}
		return openai.New(lc), nil
	case langchain.ProviderAnthropic, langchain.ProviderOllama:
		m, err := langchain.New(cfg.LLM.Provider, lc)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported llm.provider %q (want openai, anthropic or ollama)", cfg.LLM.Provider)
	}
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	provider, err := newProvider(cfg, "")
	if err != nil {
		return nil, err
	}
	fast := provider
	if cfg.LLM.FastModel != "" && cfg.LLM.FastModel != cfg.LLM.Model {
		if fast, err = newProvider(cfg, cfg.LLM.FastModel); err != nil {
			return nil, fmt.Errorf("fast model: %w", err)
		}
	}

	engine, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve, cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("create context engine: %w", err)
	}

	set := tools.FromConfig(cfg)
	registry := runtime.NewRegistry()
	set.Register(registry)

	// A nil *video.Pipeline must not reach the runtime as a non-nil interface.
	var videos runtime.VideoEnricher
	if set.YouTube != nil {
		videos = video.New(fast, set.YouTube, set.Transcripts)
	} else {
		slog.Warn("video enrichment disabled (no youtube api key)")
	}

	rt := runtime.New(provider, engine, registry, videos, cfg.TurnTimeout())

	messages := state.NewMessageStore(cfg.DataDir)
	conversations := state.NewConversationStore(cfg.DataDir)
	gw := gateway.New(rt, messages, conversations, int64(cfg.MaxConcurrent))
	gw.SetHistoryTurns(cfg.HistoryLimit)

	return &app{
		cfg:           cfg,
		registry:      registry,
		runtime:       rt,
		messages:      messages,
		conversations: conversations,
		gateway:       gw,
	}, nil
}
