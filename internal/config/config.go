package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Embedding   EmbeddingConfig
	Catalog     CatalogConfig
	Upstream    UpstreamConfig
	Retrieval   RetrievalConfig
	Negotiation NegotiationConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port int
}

type EmbeddingConfig struct {
	BaseURL string
	Model   string
	Timeout string // duration string, e.g. "5s"
}

type CatalogConfig struct {
	DataDir string
}

type UpstreamConfig struct {
	APIKey      string
	Models      []string // ordered fallback list, first is preferred
	MinInterval string   // minimum spacing between upstream requests
	MaxRetries  int
}

type RetrievalConfig struct {
	MaxResults      int
	SimilarityFloor float64
	FusionK         int
	BM25K1          float64
	BM25B           float64
}

// NegotiationConfig exposes every bargaining threshold. None of these are
// literals in the negotiation package; the canonical defaults live here.
type NegotiationConfig struct {
	TurnThreshold   int
	MaxDiscountCap  int
	BaseDiscountCap int
	MinDiscount     int
	Cooldown        string // duration string, e.g. "5m"
	RudenessLimit   int
	SurchargeStep   int
	SurchargeCap    int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
			Timeout: "5s",
		},
		Catalog: CatalogConfig{
			DataDir: defaultDataDir(),
		},
		Upstream: UpstreamConfig{
			Models: []string{
				"anthropic/claude-sonnet-4",
				"openai/gpt-4o-mini",
				"meta-llama/llama-3.3-70b-instruct",
			},
			MinInterval: "500ms",
			MaxRetries:  3,
		},
		Retrieval: RetrievalConfig{
			MaxResults:      10,
			SimilarityFloor: 0.3,
			FusionK:         60,
			BM25K1:          1.5,
			BM25B:           0.75,
		},
		Negotiation: NegotiationConfig{
			TurnThreshold:   3,
			MaxDiscountCap:  30,
			BaseDiscountCap: 15,
			MinDiscount:     5,
			Cooldown:        "5m",
			RudenessLimit:   3,
			SurchargeStep:   5,
			SurchargeCap:    25,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/haggle/config.json, with HAGGLE_* environment variables
// overriding file values.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Upstream.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: upstream API key. " +
			"Set it via environment variable HAGGLE_UPSTREAM_API_KEY or upstream.api_key in the config file")
	}
	if len(cfg.Upstream.Models) == 0 {
		return Config{}, fmt.Errorf("upstream.models must list at least one model")
	}

	return cfg, nil
}

// EmbedTimeout parses the embedding timeout, falling back to 5s on a bad value.
func (c Config) EmbedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embedding.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// CooldownDuration parses the negotiation cooldown, falling back to 5m.
func (c Config) CooldownDuration() time.Duration {
	d, err := time.ParseDuration(c.Negotiation.Cooldown)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// MinUpstreamInterval parses the upstream request spacing, falling back to 500ms.
func (c Config) MinUpstreamInterval() time.Duration {
	d, err := time.ParseDuration(c.Upstream.MinInterval)
	if err != nil || d < 0 {
		return 500 * time.Millisecond
	}
	return d
}

func splitModels(raw string) []string {
	parts := strings.Split(raw, ",")
	models := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			models = append(models, p)
		}
	}
	return models
}
