// Package embedder turns node text into embedding vectors through an eino
// embedding model, prefixing each text with the instruction for its kind.
package embedder

import (
	"context"
	"fmt"
	"strings"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/similarity"
)

// ProviderOpenAI covers OpenAI and every OpenAI-compatible endpoint (OpenRouter,
// vLLM, TEI) selected through BaseURL.
const ProviderOpenAI = "openai"

// instructions are the task descriptions the model is queried with, per kind.
var instructions = map[string]string{
	"recipe":     "Given a recipe description, retrieve similar recipes with related ingredients and cooking style",
	"ingredient": "Given an ingredient description, retrieve similar ingredients with related nutritional properties and culinary uses",
	"category":   "Given a food category description, retrieve related food categories",
}

const genericInstruction = "Given a food-related search query, retrieve relevant recipes, ingredients and food categories"

// Instruction returns the task description for a kind; unknown kinds and "all"
// get the generic one.
func Instruction(kind string) string {
	if s, ok := instructions[strings.ToLower(kind)]; ok {
		return s
	}
	return genericInstruction
}

// Format wraps text in the instruction prompt the model expects.
func Format(kind, text string) string {
	return fmt.Sprintf("Instruct: %s\nQuery: %s", Instruction(kind), text)
}

// Config selects and configures the embedding model.
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
}

// Embedder produces fixed-dimension vectors for node and query text.
type Embedder struct {
	model      embedding.Embedder
	dimensions int
	log        *logger.Logger
}

// New wraps an eino embedding model. dimensions, when positive, is enforced on
// every returned vector.
func New(model embedding.Embedder, dimensions int, log *logger.Logger) *Embedder {
	if log == nil {
		log = logger.Nop()
	}
	return &Embedder{model: model, dimensions: dimensions, log: log.With("component", "Embedder")}
}

// NewFromConfig builds the eino model named by cfg and wraps it.
func NewFromConfig(ctx context.Context, cfg Config, log *logger.Logger) (*Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding API key is required")
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("embedding model is required")
		}
		ec := &openaiEmbed.EmbeddingConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}
		if cfg.Dimensions > 0 {
			d := cfg.Dimensions
			ec.Dimensions = &d
		}
		m, err := openaiEmbed.NewEmbedder(ctx, ec)
		if err != nil {
			return nil, fmt.Errorf("create embedding model: %w", err)
		}
		return New(m, cfg.Dimensions, log), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// Dimensions returns the enforced vector dimension, or 0 when unchecked.
func (e *Embedder) Dimensions() int { return e.dimensions }

// EmbedQuery embeds one search text with the instruction for kind.
func (e *Embedder) EmbedQuery(ctx context.Context, kind string, text string) ([]float64, error) {
	vecs, err := e.Embed(ctx, kind, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embed embeds texts with the instruction for kind and returns one vector per text.
func (e *Embedder) Embed(ctx context.Context, kind string, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	prompts := make([]string, len(texts))
	for i, t := range texts {
		prompts[i] = Format(kind, t)
	}
	vecs, err := e.model.EmbedStrings(ctx, prompts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedding model returned an empty vector for text %d", i)
		}
		if e.dimensions > 0 && len(v) != e.dimensions {
			return nil, fmt.Errorf("text %d: %w: got %d, want %d", i, similarity.ErrDimensionMismatch, len(v), e.dimensions)
		}
		if similarity.IsZero(v) {
			e.log.Warn("embedding model returned a zero vector", "kind", kind, "index", i)
		}
	}
	return vecs, nil
}
