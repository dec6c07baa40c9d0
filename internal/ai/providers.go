package ai

import (
	"context"
	"fmt"
	"strings"

	"document-rag-platform/internal/config"
	"document-rag-platform/utils"
)

// Embedder produces fixed-dimension embeddings. Implementations make one
// provider call per Embed invocation regardless of batch size.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// Generator produces an answer grounded in the supplied context blocks.
type Generator interface {
	GenerateAnswer(ctx context.Context, query string, contextBlocks []string) (string, error)
}

// Providers bundles the embedding and generation clients selected by
// configuration. When both roles point at the same provider a single
// client is shared so breaker and limiter state stay unified.
type Providers struct {
	Embedder  Embedder
	Generator Generator

	gemini *GeminiClient
}

// Close releases provider connections that hold them.
func (p *Providers) Close() {
	if p.gemini != nil {
		p.gemini.Close()
	}
}

func NewProviders(cfg *config.Config) (*Providers, error) {
	var (
		openaiClient *OpenAIClient
		geminiClient *GeminiClient
		err          error
	)

	getOpenAI := func() (*OpenAIClient, error) {
		if openaiClient == nil {
			openaiClient, err = NewOpenAIClient(cfg)
			if err != nil {
				return nil, err
			}
		}
		return openaiClient, nil
	}
	getGemini := func() (*GeminiClient, error) {
		if geminiClient == nil {
			geminiClient, err = NewGeminiClient(cfg)
			if err != nil {
				return nil, err
			}
		}
		return geminiClient, nil
	}

	p := &Providers{}

	switch cfg.EmbeddingsProvider {
	case "openai":
		c, err := getOpenAI()
		if err != nil {
			return nil, err
		}
		p.Embedder = c
	case "google":
		c, err := getGemini()
		if err != nil {
			return nil, err
		}
		p.Embedder = c
	default:
		return nil, utils.NewError(utils.KindConfiguration,
			fmt.Sprintf("unknown embeddings provider: %s", cfg.EmbeddingsProvider))
	}

	switch cfg.GenerationProvider {
	case "openai":
		c, err := getOpenAI()
		if err != nil {
			return nil, err
		}
		p.Generator = c
	case "google":
		c, err := getGemini()
		if err != nil {
			return nil, err
		}
		p.Generator = c
	default:
		return nil, utils.NewError(utils.KindConfiguration,
			fmt.Sprintf("unknown generation provider: %s", cfg.GenerationProvider))
	}

	p.gemini = geminiClient
	return p, nil
}

const answerSystemPrompt = "You are a helpful assistant that answers questions based on the provided context."

// buildAnswerPrompt assembles the grounded prompt shared by all
// generation providers. Context blocks are separated by blank lines.
func buildAnswerPrompt(query string, contextBlocks []string) string {
	context := strings.Join(contextBlocks, "\n\n")
	return fmt.Sprintf("You must answer from the provided context only.\n\nContext:\n%s\n\nUser question: %s\n\nAnswer:", context, query)
}
