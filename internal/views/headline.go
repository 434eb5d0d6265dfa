package views

import (
	"context"
	"fmt"
	"strings"

	"issuelens/internal/core"
	"issuelens/internal/llm"
)

// Headliner writes the issue-level title and subtitle from member
// article headlines. Used once per issue after clustering.
type Headliner struct {
	client LLMClient
}

// NewHeadliner creates a headline generator.
func NewHeadliner(client LLMClient) *Headliner {
	return &Headliner{client: client}
}

const maxHeadlineInputs = 8

// Headline produces a short title and a one-line subtitle for the
// issue the given articles belong to.
func (h *Headliner) Headline(ctx context.Context, articles []core.Article) (title, subtitle string, err error) {
	if len(articles) == 0 {
		return "", "", fmt.Errorf("%w: no articles for headline", core.ErrGeneration)
	}

	var b strings.Builder
	b.WriteString("These news headlines cover one underlying issue:\n\n")
	for i, article := range articles {
		if i >= maxHeadlineInputs {
			break
		}
		fmt.Fprintf(&b, "- %s (%s)\n", article.Title, article.Outlet)
	}
	b.WriteString("\nWrite a neutral title for the issue itself, not any single event, in at most 10 words.\n")
	b.WriteString("Then on the next line write a one-sentence subtitle.\n")
	b.WriteString("Output exactly two lines, no labels.")

	response, err := h.client.GenerateText(ctx, b.String(), llm.TextGenerationOptions{
		MaxTokens:   128,
		Temperature: 0.4,
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: headline: %v", core.ErrGeneration, err)
	}

	var lines []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "*#\"")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", "", fmt.Errorf("%w: empty headline response", core.ErrGeneration)
	}

	title = lines[0]
	if len(lines) > 1 {
		subtitle = lines[1]
	}
	return title, subtitle, nil
}
