// Package llm wraps the Gemini API for text generation and embeddings.
package llm

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model for view generation.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel is the default model for generating embeddings.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka).
	DefaultEmbeddingDimensions = int32(768)
	// DefaultEmbeddingBatchSize caps the number of items per embedding request.
	DefaultEmbeddingBatchSize = 100
	// DefaultMaxItemChars caps the length of a single embedding input.
	DefaultMaxItemChars = 4000
	// DefaultMinItemChars excludes near-empty texts from embedding.
	DefaultMinItemChars = 50
)

// Client represents a client for interacting with the Gemini API.
type Client struct {
	apiKey         string
	modelName      string
	embeddingModel string
	gClient        *genai.Client
}

// TextGenerationOptions contains options for text generation.
type TextGenerationOptions struct {
	MaxTokens   int32   // Maximum number of tokens to generate
	Temperature float32 // Temperature for randomness (0.0 to 1.0)
	Model       string  // Model to use (optional, defaults to client's model)
}

// EmbeddingOptions shapes embedding requests.
type EmbeddingOptions struct {
	BatchSize    int // Max items per API request
	MaxItemChars int // Inputs longer than this are truncated
	MinItemChars int // Inputs shorter than this are skipped
}

// DefaultEmbeddingOptions returns the standard request shaping.
func DefaultEmbeddingOptions() EmbeddingOptions {
	return EmbeddingOptions{
		BatchSize:    DefaultEmbeddingBatchSize,
		MaxItemChars: DefaultMaxItemChars,
		MinItemChars: DefaultMinItemChars,
	}
}

// NewClient creates a new LLM client.
// It supports multiple ways to get the API key (in order of preference):
// 1. Environment variable: GEMINI_API_KEY (or alternatives)
// 2. Viper configuration: ai.gemini.api_key
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("ai.gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.\nGet your API key from: https://makersuite.google.com/app/apikey")
	}

	if modelName == "" {
		modelName = viper.GetString("ai.gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	embeddingModel := viper.GetString("ai.gemini.embedding_model")
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		apiKey:         apiKey,
		modelName:      modelName,
		embeddingModel: embeddingModel,
		gClient:        gClient,
	}, nil
}

// GetModelName returns the model name used by this client.
func (c *Client) GetModelName() string {
	return c.modelName
}

// Close cleans up resources used by the client.
func (c *Client) Close() {
	// The SDK client does not require explicit close
}

// GenerateText generates text using the LLM with specified options.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var config *genai.GenerateContentConfig
	if options.MaxTokens > 0 || options.Temperature > 0 {
		config = &genai.GenerateContentConfig{}
		if options.MaxTokens > 0 {
			config.MaxOutputTokens = options.MaxTokens
		}
		if options.Temperature > 0 {
			temp := options.Temperature
			config.Temperature = &temp
		}
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from LLM")
	}

	return text, nil
}

// GenerateEmbedding generates a vector embedding for the given text.
// Uses Matryoshka truncation to output 768 dimensions.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	embeddings, err := c.GenerateEmbeddings(ctx, []string{text}, DefaultEmbeddingOptions())
	if err != nil {
		return nil, err
	}
	if embeddings[0] == nil {
		return nil, fmt.Errorf("text too short to embed")
	}
	return embeddings[0], nil
}

// GenerateEmbeddings generates embeddings for a batch of texts. The
// result is index-aligned with the input: entries skipped for being
// below the minimum length come back as nil. Inputs beyond the
// per-item cap are truncated before sending.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string, opts EmbeddingOptions) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultEmbeddingBatchSize
	}
	if opts.MaxItemChars <= 0 {
		opts.MaxItemChars = DefaultMaxItemChars
	}

	results := make([][]float64, len(texts))

	// Collect the indexes that survive the length filter so the
	// response can be mapped back onto the original positions.
	var indexes []int
	var prepared []string
	for i, text := range texts {
		trimmed := truncateRunes(strings.TrimSpace(text), opts.MaxItemChars)
		if len(trimmed) < opts.MinItemChars {
			continue
		}
		indexes = append(indexes, i)
		prepared = append(prepared, trimmed)
	}

	dims := DefaultEmbeddingDimensions
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	for start := 0; start < len(prepared); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(prepared) {
			end = len(prepared)
		}

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range prepared[start:end] {
			contents = append(contents, &genai.Content{
				Parts: []*genai.Part{{Text: text}},
				Role:  "user",
			})
		}

		resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if err := checkEmbeddingResponse(resp, end-start); err != nil {
			return nil, err
		}

		for j, emb := range resp.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("no embedding values returned from API")
			}
			values := emb.Values
			vector := make([]float64, len(values))
			for k, val := range values {
				vector[k] = float64(val)
			}
			results[indexes[start+j]] = vector
		}
	}

	return results, nil
}

// truncateRunes caps s at max characters, cutting on a rune boundary
// so multi-byte text never reaches the API as invalid UTF-8.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// checkEmbeddingResponse validates one batch response before its
// vectors are read.
func checkEmbeddingResponse(resp *genai.EmbedContentResponse, want int) error {
	if resp == nil {
		return fmt.Errorf("empty embedding response: want %d embeddings", want)
	}
	if len(resp.Embeddings) != want {
		return fmt.Errorf("embedding response size mismatch: want %d, got %d", want, len(resp.Embeddings))
	}
	return nil
}

// CosineSimilarity calculates the cosine similarity between two embeddings.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
