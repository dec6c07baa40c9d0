package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"document-rag-platform/internal/config"
	"document-rag-platform/utils"
)

// GeminiClient wraps the Google generative AI SDK behind the Embedder and
// Generator interfaces. Embedding and generation share one circuit breaker
// and rate limiter since they hit the same upstream quota.
type GeminiClient struct {
	client      *genai.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter

	embedModel  string
	genModel    string
	dimensions  int
	temperature float32
	maxTokens   int32
}

func NewGeminiClient(cfg *config.Config) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, utils.NewError(utils.KindConfiguration, "GEMINI_API_KEY is required for the google provider")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, utils.WrapError(utils.KindConfiguration, "failed to create gemini client", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
			if to == gobreaker.StateOpen {
				alertOps("Gemini API circuit breaker opened - service degraded")
			}
		},
	})

	return &GeminiClient{
		client:      client,
		breaker:     breaker,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.ProviderRateLimit), cfg.ProviderBurst),
		embedModel:  cfg.GoogleEmbeddingsModel,
		genModel:    cfg.GeminiModel,
		dimensions:  cfg.VectorDimensions,
		temperature: float32(cfg.GenTemperature),
		maxTokens:   int32(cfg.GenMaxTokens),
	}, nil
}

func (gc *GeminiClient) Dimensions() int { return gc.dimensions }
func (gc *GeminiClient) Model() string   { return gc.embedModel }

// Embed batches every text into a single BatchEmbedContents call.
func (gc *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, utils.NewError(utils.KindValidation, "no texts to embed")
	}

	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.batch_embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", gc.embedModel),
		attribute.Int("gemini.batch_size", len(texts)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, utils.WrapError(utils.KindTimeout, "rate limiter wait aborted", err)
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		em := gc.client.EmbeddingModel(gc.embedModel)
		batch := em.NewBatch()
		for _, text := range texts {
			batch = batch.AddContent(genai.Text(text))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			return nil, mapGeminiError(err)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return nil, utils.WrapError(utils.KindProvider, "embedding provider circuit breaker open", err)
		}
		return nil, err
	}

	resp := result.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, utils.NewError(utils.KindProvider,
			fmt.Sprintf("provider returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, utils.NewError(utils.KindProvider,
				fmt.Sprintf("provider response missing embedding for input %d", i))
		}
		if len(emb.Values) != gc.dimensions {
			return nil, utils.NewError(utils.KindProvider,
				fmt.Sprintf("expected %d-dimensional embedding, got %d", gc.dimensions, len(emb.Values)))
		}
		vectors[i] = emb.Values
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return vectors, nil
}

func (gc *GeminiClient) GenerateAnswer(ctx context.Context, query string, contextBlocks []string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", gc.genModel),
		attribute.Int("gemini.context_blocks", len(contextBlocks)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", utils.WrapError(utils.KindTimeout, "rate limiter wait aborted", err)
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.genModel)
		model.SetTemperature(gc.temperature)
		model.SetMaxOutputTokens(gc.maxTokens)
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(answerSystemPrompt)},
		}

		resp, err := model.GenerateContent(ctx, genai.Text(buildAnswerPrompt(query, contextBlocks)))
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			return nil, mapGeminiError(err)
		}

		span.SetAttributes(attribute.Int("gemini.actual_tokens", extractTokenUsage(resp)))
		return resp, nil
	})
	if err != nil {
		// When the breaker is open degrade politely instead of failing the
		// whole query. Retrieval already succeeded at this point.
		if errors.Is(err, gobreaker.ErrOpenState) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "I'm experiencing high demand right now. Please try again in a moment.", nil
		}
		return "", err
	}

	resp := result.(*genai.GenerateContentResponse)
	answer := collectResponseText(resp)
	if answer == "" {
		return "", utils.NewError(utils.KindProvider, "provider returned no completion candidates")
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return answer, nil
}

// mapGeminiError tags SDK errors with taxonomy kinds so the retry policy
// can tell transient failures from permanent ones.
func mapGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return utils.WrapError(utils.KindRateLimited, "gemini quota exceeded", err)
		case 408, 504:
			return utils.WrapError(utils.KindTimeout, "gemini request timed out", err)
		default:
			return utils.WrapError(utils.KindProvider, fmt.Sprintf("gemini returned HTTP %d", apiErr.Code), err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.WrapError(utils.KindTimeout, "gemini request timed out", err)
	}
	return utils.WrapError(utils.KindProvider, "gemini request failed", err)
}

// Extract token usage from Gemini response
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	// Fallback: estimate from response text, ~4 characters per token
	estimated := len(collectResponseText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func collectResponseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// Alert operations team
func alertOps(message string) {
	log.Printf("🚨 ALERT: %s", message)
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
