package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the batch pipeline.
type Config struct {
	AppName string
	AppEnv  string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	// Front-page classification.
	ClassifyThreshold float64 `validate:"gt=0,lte=1"`
	KeywordWeight     float64 `validate:"gte=0,lte=1"`
	LayoutWeight      float64 `validate:"gte=0,lte=1"`
	TitleWeight       float64 `validate:"gte=0,lte=1"`

	// Identity resolution.
	MatchPolicy     string  `validate:"oneof=id name-fallback combined"`
	IDThreshold     float64 `validate:"gt=0,lte=1"`
	NameThreshold   float64 `validate:"gt=0,lte=1"`
	NameMatchWeight float64 `validate:"gte=0,lte=1"`

	// Scoring.
	ScoringPolicy       string  `validate:"oneof=keyword similarity blended"`
	SimilarityThreshold float64 `validate:"gt=0,lte=1"`
	FullCreditThreshold float64 `validate:"gt=0,lte=1"`

	// Batch execution.
	Workers             int `validate:"gte=1"`
	RetryAttempts       int `validate:"gte=1"`
	RetryBackoff        time.Duration
	ExternalCallTimeout time.Duration

	// External similarity provider.
	AIProvider   string
	OpenAIAPIKey string
	OpenAIModel  string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration values from environment variables and an optional
// .env file, then validates ranges and enumerations.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SCRIPTMARK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "scriptmark")
	v.SetDefault("app.env", "development")

	v.SetDefault("classify.threshold", 0.5)
	v.SetDefault("classify.keyword_weight", 0.4)
	v.SetDefault("classify.layout_weight", 0.3)
	v.SetDefault("classify.title_weight", 0.3)

	v.SetDefault("match.policy", "name-fallback")
	v.SetDefault("match.id_threshold", 0.85)
	v.SetDefault("match.name_threshold", 0.8)
	v.SetDefault("match.name_weight", 0.5)

	v.SetDefault("scoring.policy", "similarity")
	v.SetDefault("scoring.similarity_threshold", 0.75)
	v.SetDefault("scoring.full_credit_threshold", 0.95)

	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.retry_attempts", 3)
	v.SetDefault("batch.retry_backoff", "1s")
	v.SetDefault("batch.call_timeout", "30s")

	v.SetDefault("ai.provider", "local")
	v.SetDefault("openai.model", "gpt-4o-mini")

	backoff, err := time.ParseDuration(v.GetString("batch.retry_backoff"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid retry backoff: %w", err)
	}

	callTimeout, err := time.ParseDuration(v.GetString("batch.call_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid call timeout: %w", err)
	}

	cfg := Config{
		AppName: v.GetString("app.name"),
		AppEnv:  v.GetString("app.env"),

		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),

		ClassifyThreshold: v.GetFloat64("classify.threshold"),
		KeywordWeight:     v.GetFloat64("classify.keyword_weight"),
		LayoutWeight:      v.GetFloat64("classify.layout_weight"),
		TitleWeight:       v.GetFloat64("classify.title_weight"),

		MatchPolicy:     strings.ToLower(v.GetString("match.policy")),
		IDThreshold:     v.GetFloat64("match.id_threshold"),
		NameThreshold:   v.GetFloat64("match.name_threshold"),
		NameMatchWeight: v.GetFloat64("match.name_weight"),

		ScoringPolicy:       strings.ToLower(v.GetString("scoring.policy")),
		SimilarityThreshold: v.GetFloat64("scoring.similarity_threshold"),
		FullCreditThreshold: v.GetFloat64("scoring.full_credit_threshold"),

		Workers:             v.GetInt("batch.workers"),
		RetryAttempts:       v.GetInt("batch.retry_attempts"),
		RetryBackoff:        backoff,
		ExternalCallTimeout: callTimeout,

		AIProvider:   strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey: v.GetString("openai_api_key"),
		OpenAIModel:  v.GetString("openai.model"),
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	if cfg.ExternalCallTimeout <= 0 {
		cfg.ExternalCallTimeout = 30 * time.Second
	}

	return cfg, nil
}
