package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"document-rag-platform/internal/config"
	"document-rag-platform/utils"
)

// OpenAIClient talks to the OpenAI REST API for both embeddings and chat
// completions. All calls go through a shared circuit breaker and rate
// limiter so a misbehaving upstream degrades instead of stampeding.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	embedModel  string
	chatModel   string
	dimensions  int
	temperature float64
	maxTokens   int

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

func NewOpenAIClient(cfg *config.Config) (*OpenAIClient, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, utils.NewError(utils.KindConfiguration, "OPENAI_API_KEY is required for the openai provider")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OpenAIAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("🚨 Circuit breaker '%s' changed from %s to %s", name, from, to)
		},
	})

	return &OpenAIClient{
		apiKey:      cfg.OpenAIAPIKey,
		baseURL:     strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		embedModel:  cfg.OpenAIEmbeddingsModel,
		chatModel:   cfg.OpenAIChatModel,
		dimensions:  cfg.VectorDimensions,
		temperature: cfg.GenTemperature,
		maxTokens:   cfg.GenMaxTokens,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.ProviderTimeout) * time.Second,
		},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.ProviderRateLimit), cfg.ProviderBurst),
	}, nil
}

func (c *OpenAIClient) Dimensions() int { return c.dimensions }
func (c *OpenAIClient) Model() string   { return c.embedModel }

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage openAIUsage `json:"usage"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage openAIUsage `json:"usage"`
}

type openAIUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed sends the whole batch in a single /embeddings call and reassembles
// the vectors by the index the provider reports, not by response order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, utils.NewError(utils.KindValidation, "no texts to embed")
	}

	tracer := otel.Tracer("openai-client")
	ctx, span := tracer.Start(ctx, "openai.embeddings")
	defer span.End()
	span.SetAttributes(
		attribute.String("openai.model", c.embedModel),
		attribute.Int("openai.batch_size", len(texts)),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, utils.WrapError(utils.KindTimeout, "rate limiter wait aborted", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var resp openAIEmbeddingResponse
		if err := c.post(ctx, "/embeddings", openAIEmbeddingRequest{
			Model: c.embedModel,
			Input: texts,
		}, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("openai.circuit_breaker_open", true))
			return nil, utils.WrapError(utils.KindProvider, "embedding provider circuit breaker open", err)
		}
		return nil, err
	}

	resp := result.(*openAIEmbeddingResponse)
	if len(resp.Data) != len(texts) {
		return nil, utils.NewError(utils.KindProvider,
			fmt.Sprintf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, utils.NewError(utils.KindProvider,
				fmt.Sprintf("provider returned embedding with out-of-range index %d", item.Index))
		}
		if len(item.Embedding) != c.dimensions {
			return nil, utils.NewError(utils.KindProvider,
				fmt.Sprintf("expected %d-dimensional embedding, got %d", c.dimensions, len(item.Embedding)))
		}
		vectors[item.Index] = item.Embedding
	}
	for i := range vectors {
		if vectors[i] == nil {
			return nil, utils.NewError(utils.KindProvider,
				fmt.Sprintf("provider response missing embedding for input %d", i))
		}
	}

	span.SetAttributes(attribute.Int("openai.total_tokens", resp.Usage.TotalTokens))
	return vectors, nil
}

func (c *OpenAIClient) GenerateAnswer(ctx context.Context, query string, contextBlocks []string) (string, error) {
	tracer := otel.Tracer("openai-client")
	ctx, span := tracer.Start(ctx, "openai.chat_completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("openai.model", c.chatModel),
		attribute.Int("openai.context_blocks", len(contextBlocks)),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", utils.WrapError(utils.KindTimeout, "rate limiter wait aborted", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var resp openAIChatResponse
		if err := c.post(ctx, "/chat/completions", openAIChatRequest{
			Model: c.chatModel,
			Messages: []openAIMessage{
				{Role: "system", Content: answerSystemPrompt},
				{Role: "user", Content: buildAnswerPrompt(query, contextBlocks)},
			},
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		}, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("openai.circuit_breaker_open", true))
			return "", utils.WrapError(utils.KindProvider, "generation provider circuit breaker open", err)
		}
		return "", err
	}

	resp := result.(*openAIChatResponse)
	if len(resp.Choices) == 0 {
		return "", utils.NewError(utils.KindProvider, "provider returned no completion choices")
	}

	span.SetAttributes(attribute.Int("openai.total_tokens", resp.Usage.TotalTokens))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// post performs an authenticated JSON POST and maps failures onto the
// error taxonomy: 429 is rate limited, deadline and timeout failures are
// timeouts, everything else is a provider error.
func (c *OpenAIClient) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return utils.WrapError(utils.KindProvider, "failed to encode provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return utils.WrapError(utils.KindProvider, "failed to build provider request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return utils.WrapError(utils.KindTimeout, "provider request timed out", err)
		}
		return utils.WrapError(utils.KindProvider, "provider request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		message := strings.TrimSpace(string(excerpt))
		var apiErr openAIErrorResponse
		if json.Unmarshal(excerpt, &apiErr) == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return utils.NewError(utils.KindRateLimited, message)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return utils.NewError(utils.KindTimeout, message)
		default:
			return utils.NewError(utils.KindProvider,
				fmt.Sprintf("provider returned %s: %s", resp.Status, message))
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return utils.WrapError(utils.KindProvider, "failed to decode provider response", err)
		}
	}
	return nil
}
