package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/ai"
	"github.com/spigell/interviewer/internal/ai/gemini"
	"github.com/spigell/interviewer/internal/ai/openai"
	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/logger"
	"github.com/spigell/interviewer/internal/metrics"
	"github.com/spigell/interviewer/internal/secrets"
	"github.com/spigell/interviewer/internal/store"
)

// bootstrap builds the logger and reads the config. Failures are fatal.
func bootstrap() (*Config, *zap.Logger) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil || config.AI == nil || config.Store == nil || config.Server == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting the interviewer", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(*config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return config, logger
}

func redacted(c Config) Config {
	aiCfg := *c.AI
	if aiCfg.Gemini != nil {
		g := *aiCfg.Gemini
		g.APIKey = mask(g.APIKey)
		aiCfg.Gemini = &g
	}
	if aiCfg.OpenAI != nil {
		o := *aiCfg.OpenAI
		o.APIKey = mask(o.APIKey)
		aiCfg.OpenAI = &o
	}
	c.AI = &aiCfg

	st := *c.Store
	st.Redis.Password = mask(st.Redis.Password)
	c.Store = &st

	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func newStore(ctx context.Context, cfg *StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", store.TypeFile:
		return store.NewFile(cfg.Path, logger)
	case store.TypeRedis:
		return store.NewRedis(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// newGenerator builds the configured backend. m may be nil.
func newGenerator(ctx context.Context, cfg *AIConfig, m *metrics.Metrics, log *zap.Logger) (ai.Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var (
		generator ai.Generator
		err       error
	)

	switch provider {
	case "", gemini.Provider:
		provider = gemini.Provider
		generator, err = newGemini(ctx, cfg.Gemini, log)
	case openai.Provider:
		generator, err = newOpenAI(cfg.OpenAI, log)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	log.Info("generative backend ready",
		zap.String(logger.FieldProvider, provider),
		zap.String(logger.FieldModel, generator.Model()),
	)

	if m != nil {
		generator = m.Instrument(provider, generator)
	}
	return generator, nil
}

func newGemini(ctx context.Context, cfg *GeminiConfig, log *zap.Logger) (ai.Generator, error) {
	if cfg == nil {
		return nil, errors.New("gemini configuration is required under ai.gemini")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	return gemini.NewGenerator(ctx, apiKey, cfg.Model, cfg.MaxRetries, log)
}

func newOpenAI(cfg *OpenAIConfig, log *zap.Logger) (ai.Generator, error) {
	if cfg == nil {
		return nil, errors.New("openai configuration is required under ai.openai")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "openai api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "OPENAI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	return openai.NewGenerator(apiKey, cfg.BaseURL, cfg.Model, log)
}

func newEngine(generator ai.Generator, cfg *AIConfig, log *zap.Logger) *interview.Engine {
	return interview.NewEngine(generator, log, interview.WithMaxLogLength(cfg.MaxLogLength))
}
