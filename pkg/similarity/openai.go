package similarity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	similarityDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scriptmark",
		Subsystem: "similarity",
		Name:      "request_duration_seconds",
		Help:      "Duration of similarity model requests",
	}, []string{"model"})

	similarityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scriptmark",
		Subsystem: "similarity",
		Name:      "request_failures_total",
		Help:      "Number of failed similarity model requests",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIProvider rates semantic similarity through the chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIProvider builds a provider using the supplied configuration.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 5
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/abadealex/scriptmark/pkg/similarity/openai"),
		logger: logger,
	}, nil
}

// Compare asks the model to rate the similarity of two texts and parses the
// numeric reply, clamped to [0,1]. Empty input short-circuits to zero.
func (p *OpenAIProvider) Compare(parent context.Context, a, b string) (float64, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0, nil
	}

	ctx, span := p.tracer.Start(parent, "similarity.compare", trace.WithAttributes(
		attribute.String("model", p.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: similarityPrompt(a, b)},
		},
	})
	similarityDuration.WithLabelValues(p.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		similarityFailures.WithLabelValues(p.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("similarity request: %w", err)
	}
	if len(resp.Choices) == 0 {
		similarityFailures.WithLabelValues(p.cfg.Model).Inc()
		err := fmt.Errorf("no choices returned from similarity model")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	score, err := parseScore(resp.Choices[0].Message.Content)
	if err != nil {
		similarityFailures.WithLabelValues(p.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable score")
		return 0, err
	}

	span.SetAttributes(attribute.Float64("similarity.score", score))
	return score, nil
}

func similarityPrompt(a, b string) string {
	return fmt.Sprintf(
		"Rate the semantic similarity between the two texts on a scale from 0 to 1.\n\n"+
			"Text 1: %q\nText 2: %q\n\n"+
			"Respond with only a number between 0 and 1.", a, b)
}

func parseScore(reply string) (float64, error) {
	score, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, fmt.Errorf("parse similarity reply %q: %w", reply, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
