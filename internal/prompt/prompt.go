// Package prompt builds adaptive generation requests per perspective.
// Prompt construction is deterministic: identical inputs always yield
// the identical prompt text.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"issuelens/internal/bias"
	"issuelens/internal/core"
)

// Markers delimit the three layers the generation service must emit.
const (
	PositionMarker    = "[POSITION]"
	RationaleMarker   = "[RATIONALE]"
	AlternativeMarker = "[ALTERNATIVE]"
	TitleMarker       = "[TITLE]"
)

// Options configures prompt construction.
type Options struct {
	ExcerptCount     int // Max representative excerpts per prompt
	ExcerptMaxChars  int // Truncation cap per excerpt
	PositionMinChars int // Lower bound of the position length band
	PositionMaxChars int // Upper bound of the position length band
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ExcerptCount:     3,
		ExcerptMaxChars:  400,
		PositionMinChars: 80,
		PositionMaxChars: 100,
	}
}

// Generator assembles generation prompts.
type Generator struct {
	options Options
}

// NewGenerator creates a prompt generator.
func NewGenerator(options Options) *Generator {
	if options.ExcerptCount <= 0 {
		options.ExcerptCount = DefaultOptions().ExcerptCount
	}
	if options.ExcerptMaxChars <= 0 {
		options.ExcerptMaxChars = DefaultOptions().ExcerptMaxChars
	}
	if options.PositionMinChars <= 0 || options.PositionMaxChars <= options.PositionMinChars {
		options.PositionMinChars = DefaultOptions().PositionMinChars
		options.PositionMaxChars = DefaultOptions().PositionMaxChars
	}
	return &Generator{options: options}
}

// personas gives the system framing per perspective.
var personas = map[core.Perspective]string{
	core.PerspectiveLeft:   "a political analyst who foregrounds progressive values",
	core.PerspectiveCenter: "a political analyst committed to balanced, evidence-first judgment",
	core.PerspectiveRight:  "a political analyst who foregrounds conservative values",
}

// toneByType steers register per issue type.
var toneByType = map[core.IssueType]string{
	core.IssueEconomic:      "lead with concrete data and realistic grounds",
	core.IssueEnvironmental: "keep future generations and sustainability in view",
	core.IssueSecurity:      "put national safety and protection of the public first",
	core.IssueTechnological: "weigh innovation against safety throughout",
	core.IssueSocial:        "keep fairness and the most affected groups in view",
	core.IssuePolitical:     "center democratic process and public participation",
}

// Build constructs the generation prompt for one perspective on one
// issue. Excerpts are chosen for outlet diversity first, then recency.
func (g *Generator) Build(issue core.Issue, meta core.IssueMetadata, guideline bias.Guideline, articles []core.Article, perspective core.Perspective) string {
	excerpts := g.selectExcerpts(articles, perspective)

	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, analyzing this issue %s.\n\n", persona(perspective), tone(meta.IssueType))

	fmt.Fprintf(&b, "Issue: %s\n", issue.Title)
	if issue.Subtitle != "" {
		fmt.Fprintf(&b, "Subtitle: %s\n", issue.Subtitle)
	}
	b.WriteString("\nIssue characteristics:\n")
	fmt.Fprintf(&b, "- Type: %s\n", meta.IssueType)
	fmt.Fprintf(&b, "- Core tension: %s\n", meta.ValueConflict)
	fmt.Fprintf(&b, "- Complexity: %.0f/10, urgency: %.0f/10\n", meta.Complexity, meta.Urgency)
	if len(meta.Stakeholders) > 0 {
		fmt.Fprintf(&b, "- Stakeholders: %s\n", strings.Join(meta.Stakeholders, ", "))
	}

	if len(excerpts) > 0 {
		b.WriteString("\nRepresentative excerpts:\n")
		for i, excerpt := range excerpts {
			fmt.Fprintf(&b, "\n[Article %d] (%s): %s\n", i+1, excerpt.outlet, excerpt.text)
		}
	}

	b.WriteString("\n")
	b.WriteString(guideline.Text())
	b.WriteString("\n\n")

	b.WriteString("Produce the view in exactly this layered format:\n")
	fmt.Fprintf(&b, "%s one short headline for this perspective's take\n", TitleMarker)
	fmt.Fprintf(&b, "%s the core stance, %d-%d characters, one clear sentence\n", PositionMarker, g.options.PositionMinChars, g.options.PositionMaxChars)
	fmt.Fprintf(&b, "%s why this perspective holds that stance, with concrete grounds from the excerpts\n", RationaleMarker)
	fmt.Fprintf(&b, "%s a fair acknowledgement of how the other perspectives see it, and why this stance still holds\n", AlternativeMarker)
	b.WriteString("\nOutput only the four marked lines, nothing else.")

	return b.String()
}

// BuildRetry extends the base prompt with the quality checker's
// feedback from the rejected attempt.
func (g *Generator) BuildRetry(issue core.Issue, meta core.IssueMetadata, guideline bias.Guideline, articles []core.Article, perspective core.Perspective, hints []string) string {
	base := g.Build(issue, meta, guideline, articles, perspective)
	if len(hints) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nThe previous attempt was rejected by quality review. Fix these points, worst first:\n")
	for i, hint := range hints {
		fmt.Fprintf(&b, "%d. %s\n", i+1, hint)
	}
	return b.String()
}

type excerpt struct {
	outlet string
	text   string
}

// selectExcerpts picks up to ExcerptCount excerpts. Articles sharing
// the target perspective's outlet bias are preferred, then the pick
// maximizes outlet diversity, then recency. Ties break on article ID
// to keep the result deterministic.
func (g *Generator) selectExcerpts(articles []core.Article, perspective core.Perspective) []excerpt {
	candidates := make([]core.Article, 0, len(articles))
	for _, a := range articles {
		if strings.TrimSpace(a.CleanedText) == "" {
			continue
		}
		candidates = append(candidates, a)
	}

	// Prefer articles from outlets leaning the same way as the target
	// perspective; fall back to the full set when none match.
	var aligned []core.Article
	for _, a := range candidates {
		if a.OutletBias == string(perspective) {
			aligned = append(aligned, a)
		}
	}
	if len(aligned) > 0 {
		candidates = aligned
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].PublishedAt.Equal(candidates[j].PublishedAt) {
			return candidates[i].PublishedAt.After(candidates[j].PublishedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	seenOutlet := make(map[string]bool)
	var picked []core.Article

	// First pass: newest article per unseen outlet.
	for _, a := range candidates {
		if len(picked) >= g.options.ExcerptCount {
			break
		}
		if seenOutlet[a.Outlet] {
			continue
		}
		seenOutlet[a.Outlet] = true
		picked = append(picked, a)
	}

	// Second pass: fill remaining slots by recency.
	if len(picked) < g.options.ExcerptCount {
		chosen := make(map[string]bool, len(picked))
		for _, a := range picked {
			chosen[a.ID] = true
		}
		for _, a := range candidates {
			if len(picked) >= g.options.ExcerptCount {
				break
			}
			if chosen[a.ID] {
				continue
			}
			picked = append(picked, a)
		}
	}

	excerpts := make([]excerpt, 0, len(picked))
	for _, a := range picked {
		text := strings.TrimSpace(a.CleanedText)
		// Cut on a rune boundary so multi-byte text stays valid UTF-8.
		if runes := []rune(text); len(runes) > g.options.ExcerptMaxChars {
			text = string(runes[:g.options.ExcerptMaxChars])
		}
		excerpts = append(excerpts, excerpt{outlet: a.Outlet, text: text})
	}
	return excerpts
}

func persona(perspective core.Perspective) string {
	if p, ok := personas[perspective]; ok {
		return p
	}
	return personas[core.PerspectiveCenter]
}

func tone(issueType core.IssueType) string {
	if t, ok := toneByType[issueType]; ok {
		return t
	}
	return toneByType[core.IssuePolitical]
}
