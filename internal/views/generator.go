// Package views wraps the text-generation service and parses its free
// text output into the structured three-layer view.
package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"issuelens/internal/core"
	"issuelens/internal/llm"
	"issuelens/internal/prompt"
)

// LLMClient is the interface for text generation.
type LLMClient interface {
	GenerateText(ctx context.Context, p string, options llm.TextGenerationOptions) (string, error)
}

// Options configures view generation.
type Options struct {
	MaxTokens   int32
	Temperature float32
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// Generator produces structured views via the generation service.
type Generator struct {
	client  LLMClient
	options Options
}

// NewGenerator creates a view generator with the given LLM client.
func NewGenerator(client LLMClient, options Options) *Generator {
	return &Generator{client: client, options: options}
}

// Generate invokes the generation service with the constructed prompt
// and parses the response into a View. The provider enforces no
// response schema, so malformed output is rejected rather than
// silently accepted.
func (g *Generator) Generate(ctx context.Context, issueID string, perspective core.Perspective, promptText string) (core.View, error) {
	response, err := g.client.GenerateText(ctx, promptText, llm.TextGenerationOptions{
		MaxTokens:   g.options.MaxTokens,
		Temperature: g.options.Temperature,
	})
	if err != nil {
		return core.View{}, fmt.Errorf("%w: %v", core.ErrGeneration, err)
	}

	view, err := ParseResponse(response)
	if err != nil {
		return core.View{}, err
	}

	view.IssueID = issueID
	view.Perspective = perspective
	view.GeneratedAt = time.Now().UTC()
	return view, nil
}

// sectionMarkers in the order they are expected in the response.
var sectionMarkers = []string{
	prompt.TitleMarker,
	prompt.PositionMarker,
	prompt.RationaleMarker,
	prompt.AlternativeMarker,
}

// ParseResponse splits the model's free text into the marked sections.
// Markers may sit inline or on their own lines; surrounding markdown
// emphasis is tolerated. Title is optional; the three layers are not.
func ParseResponse(response string) (core.View, error) {
	text := strings.TrimSpace(response)
	if text == "" {
		return core.View{}, fmt.Errorf("%w: empty response", core.ErrGeneration)
	}

	sections := make(map[string]string, len(sectionMarkers))

	// Locate each marker and take the text up to the next marker.
	type hit struct {
		marker string
		start  int // Index just past the marker
	}
	var hits []hit
	for _, marker := range sectionMarkers {
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		hits = append(hits, hit{marker: marker, start: idx + len(marker)})
	}

	for _, h := range hits {
		end := len(text)
		for _, other := range hits {
			if other.start > h.start && other.start-len(other.marker) < end {
				end = other.start - len(other.marker)
			}
		}
		content := strings.TrimSpace(text[h.start:end])
		content = strings.Trim(content, "*_: ")
		sections[h.marker] = strings.TrimSpace(content)
	}

	view := core.View{
		Title:       sections[prompt.TitleMarker],
		Position:    sections[prompt.PositionMarker],
		Rationale:   sections[prompt.RationaleMarker],
		Alternative: sections[prompt.AlternativeMarker],
	}

	var missing []string
	if view.Position == "" {
		missing = append(missing, "position")
	}
	if view.Rationale == "" {
		missing = append(missing, "rationale")
	}
	if view.Alternative == "" {
		missing = append(missing, "alternative")
	}
	if len(missing) > 0 {
		return core.View{}, fmt.Errorf("%w: response missing %s layer(s)", core.ErrGeneration, strings.Join(missing, ", "))
	}

	if view.Title == "" {
		view.Title = fallbackTitle(view.Position)
	}

	return view, nil
}

// fallbackTitle derives a short title from the position statement when
// the model omitted the title line.
func fallbackTitle(position string) string {
	const maxTitle = 60
	if len(position) <= maxTitle {
		return position
	}
	cut := strings.LastIndex(position[:maxTitle], " ")
	if cut <= 0 {
		cut = maxTitle
	}
	return position[:cut] + "..."
}
