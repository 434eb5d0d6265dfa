// Package analyzer derives semantic metadata for an issue from its
// member articles: issue type, stakeholders, core value conflict, and
// complexity/urgency scores. Analysis is a pure function of the input
// article set.
package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"issuelens/internal/core"
)

// Options configures the analyzer.
type Options struct {
	MinConfidence     float64 // Below this the issue type falls back to uncategorized
	MinAnalyzableText int     // Combined text shorter than this is treated as insufficient
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MinConfidence:     0.4,
		MinAnalyzableText: 80,
	}
}

// Analyzer classifies issues via keyword scoring over a fixed taxonomy.
type Analyzer struct {
	options Options
}

// New creates an analyzer.
func New(options Options) *Analyzer {
	if options.MinConfidence <= 0 {
		options.MinConfidence = DefaultOptions().MinConfidence
	}
	if options.MinAnalyzableText <= 0 {
		options.MinAnalyzableText = DefaultOptions().MinAnalyzableText
	}
	return &Analyzer{options: options}
}

// issueTypeKeywords maps each taxonomy entry to its signal terms.
var issueTypeKeywords = map[core.IssueType][]string{
	core.IssueEconomic: {
		"economy", "economic", "growth", "investment", "employment", "jobs",
		"wages", "inflation", "interest rate", "tax", "budget", "housing",
		"stock", "market", "capital", "finance", "business", "trade", "gdp",
	},
	core.IssueEnvironmental: {
		"environment", "climate", "carbon", "energy", "renewable", "pollution",
		"emissions", "air quality", "water quality", "ecosystem", "green",
		"sustainable", "global warming", "wildlife", "conservation",
	},
	core.IssueSecurity: {
		"security", "defense", "military", "missile", "nuclear", "alliance",
		"terrorism", "cyber", "intelligence", "threat", "border", "war",
		"sanctions", "weapons", "surveillance",
	},
	core.IssueTechnological: {
		"technology", "ai", "artificial intelligence", "digital", "data",
		"algorithm", "cloud", "blockchain", "software", "platform",
		"automation", "privacy", "internet", "startup", "innovation",
	},
	core.IssueSocial: {
		"society", "welfare", "insurance", "healthcare", "education",
		"elderly", "children", "disability", "immigration", "housing",
		"transit", "teachers", "students", "schools", "community", "poverty",
	},
	core.IssuePolitical: {
		"politics", "election", "party", "congress", "parliament",
		"government", "president", "minister", "legislation", "senator",
		"campaign", "vote", "coalition", "opposition", "reform",
	},
}

// stakeholderKeywords maps stakeholder groups to their mention terms.
var stakeholderKeywords = map[string][]string{
	"government": {
		"government", "state", "public sector", "officials", "agency",
		"policy", "budget", "regulator", "administration",
	},
	"corporate": {
		"company", "corporation", "business", "industry", "employer",
		"investor", "market", "profit", "shareholders", "startup",
	},
	"citizen": {
		"citizens", "residents", "people", "families", "consumers",
		"workers", "taxpayers", "voters", "public",
	},
	"international-body": {
		"un", "united nations", "wto", "oecd", "imf", "world bank",
		"international", "global", "treaty", "nato", "eu",
	},
	"regional": {
		"local", "regional", "municipal", "city council", "state government",
		"communities", "neighborhood",
	},
	"expert": {
		"experts", "researchers", "scientists", "professors", "analysts",
		"study", "institute", "academics",
	},
}

// valueConflicts maps each issue type to its canonical tension pair,
// with the keywords whose density selects between candidates.
type conflictCandidate struct {
	label    string
	keywords []string
}

var valueConflictCandidates = map[core.IssueType][]conflictCandidate{
	core.IssueEconomic: {
		{"market vs government", []string{"market", "regulation", "intervention", "deregulation", "free market", "subsid"}},
		{"efficiency vs fairness", []string{"efficiency", "fairness", "distribution", "inequality", "competition"}},
	},
	core.IssueEnvironmental: {
		{"growth vs sustainability", []string{"growth", "sustainable", "development", "conservation", "emissions"}},
		{"innovation vs precaution", []string{"innovation", "precaution", "risk", "technology", "safety"}},
	},
	core.IssueSecurity: {
		{"liberty vs security", []string{"liberty", "freedom", "surveillance", "security", "privacy", "rights"}},
		{"diplomacy vs deterrence", []string{"diplomacy", "deterrence", "negotiation", "sanctions", "military"}},
	},
	core.IssueTechnological: {
		{"innovation vs safety", []string{"innovation", "safety", "regulation", "risk", "harm"}},
		{"openness vs privacy", []string{"open", "privacy", "data", "transparency", "consent"}},
	},
	core.IssueSocial: {
		{"individual vs collective", []string{"individual", "community", "collective", "personal responsibility", "solidarity"}},
		{"liberty vs equality", []string{"liberty", "equality", "opportunity", "discrimination", "rights"}},
	},
	core.IssuePolitical: {
		{"liberty vs equality", []string{"liberty", "equality", "rights", "fairness", "freedom"}},
		{"reform vs stability", []string{"reform", "stability", "change", "tradition", "institution"}},
	},
}

// intensityWords signal urgency in the article text.
var intensityWords = []string{
	"urgent", "crisis", "emergency", "immediately", "deadline", "critical",
	"severe", "escalat", "collapse", "warning", "threat",
}

var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z'-]+`)

// Analyze derives IssueMetadata from an issue's member articles. When
// the combined text is too short to analyze, it returns uncategorized
// metadata together with an analysis error so callers can log the
// degradation; the metadata is still usable.
func (a *Analyzer) Analyze(articles []core.Article) (core.IssueMetadata, error) {
	if len(articles) == 0 {
		return uncategorized(), fmt.Errorf("%w: no articles to analyze", core.ErrAnalysis)
	}

	var combined strings.Builder
	for _, article := range articles {
		combined.WriteString(article.Title)
		combined.WriteString(" ")
		combined.WriteString(article.CleanedText)
		combined.WriteString(" ")
	}
	text := strings.ToLower(combined.String())

	if len(strings.TrimSpace(text)) < a.options.MinAnalyzableText {
		return uncategorized(), fmt.Errorf("%w: combined article text below %d chars", core.ErrAnalysis, a.options.MinAnalyzableText)
	}

	issueType, typeScore := classifyType(text)
	stakeholders := findStakeholders(text)
	conflict := findValueConflict(text, issueType)
	complexity := scoreComplexity(text, stakeholders)
	urgency := scoreUrgency(text, articles)
	confidence := calculateConfidence(typeScore, stakeholders, conflict)

	if confidence < a.options.MinConfidence {
		issueType = core.IssueUncategorized
	}

	return core.IssueMetadata{
		IssueType:     issueType,
		Stakeholders:  stakeholders,
		ValueConflict: conflict,
		Complexity:    complexity,
		Urgency:       urgency,
		Confidence:    confidence,
	}, nil
}

func uncategorized() core.IssueMetadata {
	return core.IssueMetadata{
		IssueType:     core.IssueUncategorized,
		Stakeholders:  []string{"government", "citizen"},
		ValueConflict: "liberty vs equality",
		Complexity:    5,
		Urgency:       5,
		Confidence:    0,
	}
}

// classifyType scores each taxonomy entry by matched signal terms and
// returns the winner with its match count. Ties break toward the type
// with the most matched terms; equal counts fall back to taxonomy
// declaration order via sorted type names for determinism.
func classifyType(text string) (core.IssueType, int) {
	types := make([]core.IssueType, 0, len(issueTypeKeywords))
	for issueType := range issueTypeKeywords {
		types = append(types, issueType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	best := core.IssueUncategorized
	bestScore := 0
	for _, issueType := range types {
		score := 0
		for _, keyword := range issueTypeKeywords[issueType] {
			score += strings.Count(text, keyword)
		}
		if score > bestScore {
			best = issueType
			bestScore = score
		}
	}

	return best, bestScore
}

// findStakeholders returns up to three stakeholder groups ordered by
// mention density, strongest first.
func findStakeholders(text string) []string {
	type entry struct {
		name  string
		score int
	}

	var scored []entry
	for stakeholder, keywords := range stakeholderKeywords {
		score := 0
		for _, keyword := range keywords {
			score += strings.Count(text, keyword)
		}
		if score > 0 {
			scored = append(scored, entry{stakeholder, score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].name < scored[j].name
	})

	var result []string
	for i, e := range scored {
		if i >= 3 {
			break
		}
		result = append(result, e.name)
	}
	return result
}

// findValueConflict picks the issue type's canonical tension pair whose
// indicator language is densest in the text.
func findValueConflict(text string, issueType core.IssueType) string {
	candidates, ok := valueConflictCandidates[issueType]
	if !ok {
		candidates = valueConflictCandidates[core.IssuePolitical]
	}

	best := candidates[0].label
	bestScore := -1
	for _, candidate := range candidates {
		score := 0
		for _, keyword := range candidate.keywords {
			score += strings.Count(text, keyword)
		}
		if score > bestScore {
			best = candidate.label
			bestScore = score
		}
	}
	return best
}

// scoreComplexity combines stakeholder count and vocabulary diversity
// into a 0-10 score.
func scoreComplexity(text string, stakeholders []string) float64 {
	// Up to 6 points from stakeholder breadth.
	score := float64(len(stakeholders)) * 2
	if score > 6 {
		score = 6
	}

	// Up to 4 points from type/token ratio over the first chunk of text.
	words := wordPattern.FindAllString(text, 600)
	if len(words) >= 50 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		diversity := float64(len(unique)) / float64(len(words))
		score += diversity * 8
	}

	if score > 10 {
		score = 10
	}
	return score
}

// scoreUrgency combines publication recency with intensity-language
// frequency into a 0-10 score.
func scoreUrgency(text string, articles []core.Article) float64 {
	// Up to 5 points from recency of the newest article.
	var newest time.Time
	for _, article := range articles {
		if article.PublishedAt.After(newest) {
			newest = article.PublishedAt
		}
	}

	score := 0.0
	if !newest.IsZero() {
		age := time.Since(newest)
		switch {
		case age < 24*time.Hour:
			score += 5
		case age < 72*time.Hour:
			score += 3.5
		case age < 7*24*time.Hour:
			score += 2
		default:
			score += 0.5
		}
	}

	// Up to 5 points from intensity language.
	matches := 0
	for _, word := range intensityWords {
		matches += strings.Count(text, word)
	}
	intensity := float64(matches)
	if intensity > 5 {
		intensity = 5
	}
	score += intensity

	if score > 10 {
		score = 10
	}
	return score
}

// calculateConfidence mirrors the classifier's signal strength: type
// match count, stakeholder coverage, and a resolved conflict label.
func calculateConfidence(typeScore int, stakeholders []string, conflict string) float64 {
	confidence := 0.2

	switch {
	case typeScore >= 6:
		confidence += 0.3
	case typeScore >= 3:
		confidence += 0.2
	case typeScore >= 1:
		confidence += 0.1
	}

	stakeholderBoost := float64(len(stakeholders)) * 0.1
	if stakeholderBoost > 0.3 {
		stakeholderBoost = 0.3
	}
	confidence += stakeholderBoost

	if conflict != "" {
		confidence += 0.2
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
