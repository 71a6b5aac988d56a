package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	apply  func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "HAGGLE_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "embedding.base_url", typ: kString, env: "HAGGLE_EMBEDDING_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Embedding.BaseURL = v.(string) },
	},
	{
		key: "embedding.model", typ: kString, env: "HAGGLE_EMBEDDING_MODEL",
		apply: func(cfg *Config, v any) { cfg.Embedding.Model = v.(string) },
	},
	{
		key: "embedding.timeout", typ: kString, env: "HAGGLE_EMBEDDING_TIMEOUT",
		apply: func(cfg *Config, v any) { cfg.Embedding.Timeout = v.(string) },
	},
	{
		key: "catalog.data_dir", typ: kString, env: "HAGGLE_CATALOG_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Catalog.DataDir = v.(string) },
	},
	{
		key: "upstream.api_key", typ: kString, env: "HAGGLE_UPSTREAM_API_KEY",
		secret: true,
		apply:  func(cfg *Config, v any) { cfg.Upstream.APIKey = v.(string) },
	},
	{
		key: "upstream.models", typ: kString, env: "HAGGLE_UPSTREAM_MODELS",
		apply: func(cfg *Config, v any) {
			if models := splitModels(v.(string)); len(models) > 0 {
				cfg.Upstream.Models = models
			}
		},
	},
	{
		key: "upstream.min_interval", typ: kString, env: "HAGGLE_UPSTREAM_MIN_INTERVAL",
		apply: func(cfg *Config, v any) { cfg.Upstream.MinInterval = v.(string) },
	},
	{
		key: "upstream.max_retries", typ: kInt, env: "HAGGLE_UPSTREAM_MAX_RETRIES",
		apply: func(cfg *Config, v any) { cfg.Upstream.MaxRetries = v.(int) },
	},
	{
		key: "retrieval.max_results", typ: kInt, env: "HAGGLE_RETRIEVAL_MAX_RESULTS",
		apply: func(cfg *Config, v any) { cfg.Retrieval.MaxResults = v.(int) },
	},
	{
		key: "retrieval.similarity_floor", typ: kFloat, env: "HAGGLE_RETRIEVAL_SIMILARITY_FLOOR",
		apply: func(cfg *Config, v any) { cfg.Retrieval.SimilarityFloor = v.(float64) },
	},
	{
		key: "retrieval.fusion_k", typ: kInt, env: "HAGGLE_RETRIEVAL_FUSION_K",
		apply: func(cfg *Config, v any) { cfg.Retrieval.FusionK = v.(int) },
	},
	{
		key: "retrieval.bm25_k1", typ: kFloat, env: "HAGGLE_RETRIEVAL_BM25_K1",
		apply: func(cfg *Config, v any) { cfg.Retrieval.BM25K1 = v.(float64) },
	},
	{
		key: "retrieval.bm25_b", typ: kFloat, env: "HAGGLE_RETRIEVAL_BM25_B",
		apply: func(cfg *Config, v any) { cfg.Retrieval.BM25B = v.(float64) },
	},
	{
		key: "negotiation.turn_threshold", typ: kInt, env: "HAGGLE_NEGOTIATION_TURN_THRESHOLD",
		apply: func(cfg *Config, v any) { cfg.Negotiation.TurnThreshold = v.(int) },
	},
	{
		key: "negotiation.max_discount_cap", typ: kInt, env: "HAGGLE_NEGOTIATION_MAX_DISCOUNT_CAP",
		apply: func(cfg *Config, v any) { cfg.Negotiation.MaxDiscountCap = v.(int) },
	},
	{
		key: "negotiation.base_discount_cap", typ: kInt, env: "HAGGLE_NEGOTIATION_BASE_DISCOUNT_CAP",
		apply: func(cfg *Config, v any) { cfg.Negotiation.BaseDiscountCap = v.(int) },
	},
	{
		key: "negotiation.min_discount", typ: kInt, env: "HAGGLE_NEGOTIATION_MIN_DISCOUNT",
		apply: func(cfg *Config, v any) { cfg.Negotiation.MinDiscount = v.(int) },
	},
	{
		key: "negotiation.cooldown", typ: kString, env: "HAGGLE_NEGOTIATION_COOLDOWN",
		apply: func(cfg *Config, v any) { cfg.Negotiation.Cooldown = v.(string) },
	},
	{
		key: "negotiation.rudeness_limit", typ: kInt, env: "HAGGLE_NEGOTIATION_RUDENESS_LIMIT",
		apply: func(cfg *Config, v any) { cfg.Negotiation.RudenessLimit = v.(int) },
	},
	{
		key: "negotiation.surcharge_step", typ: kInt, env: "HAGGLE_NEGOTIATION_SURCHARGE_STEP",
		apply: func(cfg *Config, v any) { cfg.Negotiation.SurchargeStep = v.(int) },
	},
	{
		key: "negotiation.surcharge_cap", typ: kInt, env: "HAGGLE_NEGOTIATION_SURCHARGE_CAP",
		apply: func(cfg *Config, v any) { cfg.Negotiation.SurchargeCap = v.(int) },
	},
	{
		key: "log.level", typ: kString, env: "HAGGLE_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

// KeyValue is one configuration entry for display.
type KeyValue struct {
	Key   string
	Value string
}

// ShowAll flattens a Config into displayable key/value pairs in definition order.
// Secret values are masked.
func ShowAll(cfg Config) []KeyValue {
	out := make([]KeyValue, 0, len(specs))
	for _, s := range specs {
		v := readKey(cfg, s.key)
		if s.secret && v != "" {
			v = "********"
		}
		out = append(out, KeyValue{Key: s.key, Value: v})
	}
	return out
}

func readKey(cfg Config, key string) string {
	switch key {
	case "server.port":
		return strconv.Itoa(cfg.Server.Port)
	case "embedding.base_url":
		return cfg.Embedding.BaseURL
	case "embedding.model":
		return cfg.Embedding.Model
	case "embedding.timeout":
		return cfg.Embedding.Timeout
	case "catalog.data_dir":
		return cfg.Catalog.DataDir
	case "upstream.api_key":
		return cfg.Upstream.APIKey
	case "upstream.models":
		return strings.Join(cfg.Upstream.Models, ",")
	case "upstream.min_interval":
		return cfg.Upstream.MinInterval
	case "upstream.max_retries":
		return strconv.Itoa(cfg.Upstream.MaxRetries)
	case "retrieval.max_results":
		return strconv.Itoa(cfg.Retrieval.MaxResults)
	case "retrieval.similarity_floor":
		return strconv.FormatFloat(cfg.Retrieval.SimilarityFloor, 'g', -1, 64)
	case "retrieval.fusion_k":
		return strconv.Itoa(cfg.Retrieval.FusionK)
	case "retrieval.bm25_k1":
		return strconv.FormatFloat(cfg.Retrieval.BM25K1, 'g', -1, 64)
	case "retrieval.bm25_b":
		return strconv.FormatFloat(cfg.Retrieval.BM25B, 'g', -1, 64)
	case "negotiation.turn_threshold":
		return strconv.Itoa(cfg.Negotiation.TurnThreshold)
	case "negotiation.max_discount_cap":
		return strconv.Itoa(cfg.Negotiation.MaxDiscountCap)
	case "negotiation.base_discount_cap":
		return strconv.Itoa(cfg.Negotiation.BaseDiscountCap)
	case "negotiation.min_discount":
		return strconv.Itoa(cfg.Negotiation.MinDiscount)
	case "negotiation.cooldown":
		return cfg.Negotiation.Cooldown
	case "negotiation.rudeness_limit":
		return strconv.Itoa(cfg.Negotiation.RudenessLimit)
	case "negotiation.surcharge_step":
		return strconv.Itoa(cfg.Negotiation.SurchargeStep)
	case "negotiation.surcharge_cap":
		return strconv.Itoa(cfg.Negotiation.SurchargeCap)
	case "log.level":
		return cfg.Log.Level
	}
	return ""
}

// SetKey validates and persists one configuration value in the default
// backend. Unknown keys are rejected.
func SetKey(key, value string) error {
	return setKeyWith(newFileBackend(), key, value)
}

func setKeyWith(b Backend, key, value string) error {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		switch s.typ {
		case kInt:
			i, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("%s expects an integer: %w", key, err)
			}
			return b.SetInt(key, i)
		case kFloat:
			if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
				return fmt.Errorf("%s expects a number: %w", key, err)
			}
			return b.SetString(key, strings.TrimSpace(value))
		default:
			return b.SetString(key, value)
		}
	}
	return fmt.Errorf("unknown config key %q", key)
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
