// Package quality scores generated views against seven rule-based
// criteria. Scoring is deterministic and makes no external calls, so a
// failed check can feed hints straight back into a retry prompt.
package quality

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"issuelens/internal/core"
)

// Options configures the pass threshold and the target band for the
// position layer.
type Options struct {
	PassThreshold    float64 // Aggregate score required to accept, 0-100
	PositionMinChars int
	PositionMaxChars int
}

// DefaultOptions returns the standard acceptance settings.
func DefaultOptions() Options {
	return Options{
		PassThreshold:    50.0,
		PositionMinChars: 80,
		PositionMaxChars: 100,
	}
}

// Checker evaluates views. Safe for concurrent use.
type Checker struct {
	options Options
}

// NewChecker creates a checker, falling back to defaults for
// non-positive option values.
func NewChecker(options Options) *Checker {
	defaults := DefaultOptions()
	if options.PassThreshold <= 0 {
		options.PassThreshold = defaults.PassThreshold
	}
	if options.PositionMinChars <= 0 {
		options.PositionMinChars = defaults.PositionMinChars
	}
	if options.PositionMaxChars <= options.PositionMinChars {
		options.PositionMaxChars = defaults.PositionMaxChars
	}
	return &Checker{options: options}
}

// perspectiveKeywords holds the vocabulary each perspective is expected
// to draw on (positive) and to avoid (negative).
var perspectiveKeywords = map[core.Perspective]struct {
	positive []string
	negative []string
}{
	core.PerspectiveLeft: {
		positive: []string{"fairness", "equality", "vulnerable", "social", "public", "responsibility", "protection", "welfare", "justice", "workers", "community", "solidarity"},
		negative: []string{"inequality", "discrimination", "oppression", "exploitation", "entrenched", "privilege"},
	},
	core.PerspectiveCenter: {
		positive: []string{"balance", "compromise", "prudent", "pragmatic", "reasonable", "evidence", "moderate", "realistic", "trade-off", "both sides"},
		negative: []string{"extreme", "one-sided", "hasty", "reckless", "dogmatic"},
	},
	core.PerspectiveRight: {
		positive: []string{"freedom", "liberty", "individual", "market", "competition", "efficiency", "autonomy", "responsibility", "tradition", "stability", "innovation", "growth", "investment", "enterprise", "business", "incentive"},
		negative: []string{"regulation", "intervention", "mandate", "dependency", "disorder", "coercion", "restriction"},
	},
}

// relevanceKeywords are the per-type terms a relevant view is expected
// to touch. Kept separate from the analyzer's classification vocabulary
// since relevance checks the view, not the articles.
var relevanceKeywords = map[core.IssueType][]string{
	core.IssueEconomic:      {"economy", "economic", "growth", "investment", "employment", "market", "jobs", "wages"},
	core.IssueEnvironmental: {"environment", "climate", "carbon", "energy", "emissions", "sustainable", "ecosystem"},
	core.IssueSecurity:      {"security", "defense", "safety", "protection", "threat", "deterrence"},
	core.IssueTechnological: {"technology", "ai", "digital", "innovation", "data", "algorithm", "platform"},
	core.IssueSocial:        {"society", "social", "welfare", "citizens", "fairness", "inclusion", "education"},
	core.IssuePolitical:     {"policy", "government", "legislation", "election", "reform", "institution"},
}

// nuanceIndicators signal that a view acknowledges tension or limits
// rather than asserting flatly.
var nuanceIndicators = []string{
	"however", "but", "though", "although", "nevertheless", "on the other hand",
	"some", "to some extent", "relatively", "comparatively", "partly", "in part",
	"worth considering", "should consider", "careful", "it depends", "while",
}

// stereotypePatterns match absolute language that flattens a group or
// outcome. Each hit costs 30 points.
var stereotypePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\balways\b`),
	regexp.MustCompile(`(?i)\ball\s+(?:of\s+)?(?:them|these|those|people)\b`),
	regexp.MustCompile(`(?i)\bnever\b`),
	regexp.MustCompile(`(?i)\beveryone\s+knows\b`),
	regexp.MustCompile(`(?i)\babsolutely\b`),
	regexp.MustCompile(`(?i)\bcertainly\b`),
	regexp.MustCompile(`(?i)\bundoubtedly\b`),
	regexp.MustCompile(`(?i)\bobviously\b`),
	regexp.MustCompile(`(?i)\bwithout\s+exception\b`),
}

var constructiveKeywords = []string{
	"solve", "improve", "develop", "cooperate", "dialogue", "understand",
	"consider", "pursue", "achieve", "address", "build", "invest in", "reform",
}

var destructiveKeywords = []string{
	"oppose", "reject", "dismiss", "ignore", "deny", "attack", "hostile",
	"exclude", "blame", "destroy",
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Check scores a view against all seven criteria and returns the
// verdict. A failing score is a normal outcome, not an error.
func (c *Checker) Check(view core.View, meta core.IssueMetadata) core.QualityScore {
	text := strings.ToLower(view.Position + " " + view.Rationale + " " + view.Alternative)

	subScores := map[core.Criterion]float64{
		core.CriterionBiasConsistency:  c.checkBiasConsistency(text, view.Perspective),
		core.CriterionRelevance:        c.checkRelevance(text, meta),
		core.CriterionNuance:           c.checkNuance(text),
		core.CriterionStereotypeAvoid:  c.checkStereotypeAvoidance(text),
		core.CriterionConstructiveTone: c.checkConstructiveTone(text),
		core.CriterionClarity:          c.checkClarity(text),
		core.CriterionLengthFit:        c.checkLengthFit(view.Position),
	}

	var aggregate float64
	for criterion, score := range subScores {
		aggregate += score * core.CriterionWeights[criterion] / 100
	}

	return core.QualityScore{
		SubScores: subScores,
		Aggregate: aggregate,
		Passed:    aggregate >= c.options.PassThreshold,
		Grade:     gradeFor(aggregate),
		Hints:     c.hints(subScores),
	}
}

// checkBiasConsistency rewards the perspective's own vocabulary and
// mildly penalizes the opposite register. Floor of 30 so a neutral
// paraphrase is degraded, not annihilated.
func (c *Checker) checkBiasConsistency(text string, perspective core.Perspective) float64 {
	vocab, ok := perspectiveKeywords[perspective]
	if !ok {
		return 60
	}

	positives := countMatches(text, vocab.positive)
	negatives := countMatches(text, vocab.negative)

	target := len(vocab.positive) / 3
	if target < 1 {
		target = 1
	}
	score := float64(positives) / float64(target)
	if score > 1 {
		score = 1
	}

	penalty := float64(negatives) * 0.1
	if penalty > 0.3 {
		penalty = 0.3
	}

	final := score - penalty
	if final < 0.3 {
		final = 0.3
	}
	if final > 1 {
		final = 1
	}
	return final * 100
}

// checkRelevance measures how much of the issue's characteristics the
// view actually engages: type vocabulary 40%, stakeholders 30%, the
// value conflict 30%.
func (c *Checker) checkRelevance(text string, meta core.IssueMetadata) float64 {
	var score float64

	if keywords, ok := relevanceKeywords[meta.IssueType]; ok {
		typeMatches := countMatches(text, keywords)
		typeScore := float64(typeMatches) / 2
		if typeScore > 1 {
			typeScore = 1
		}
		score += typeScore * 0.4
	} else {
		// Uncategorized issues cannot demand type vocabulary.
		score += 0.2
	}

	if len(meta.Stakeholders) > 0 {
		mentioned := 0
		for _, stakeholder := range meta.Stakeholders {
			if strings.Contains(text, strings.ToLower(stakeholder)) {
				mentioned++
			}
		}
		score += float64(mentioned) / float64(len(meta.Stakeholders)) * 0.3
	}

	if meta.ValueConflict != "" {
		sides := strings.Split(meta.ValueConflict, " vs ")
		mentioned := 0
		for _, side := range sides {
			if strings.Contains(text, strings.ToLower(strings.TrimSpace(side))) {
				mentioned++
			}
		}
		conflictScore := float64(mentioned) / float64(len(sides))
		score += conflictScore * 0.3
	}

	if score > 1 {
		score = 1
	}
	return score * 100
}

// checkNuance wants at least three hedging or contrast markers.
func (c *Checker) checkNuance(text string) float64 {
	matches := countMatches(text, nuanceIndicators)
	score := float64(matches) / 3
	if score > 1 {
		score = 1
	}
	return score * 100
}

func (c *Checker) checkStereotypeAvoidance(text string) float64 {
	hits := 0
	for _, pattern := range stereotypePatterns {
		if pattern.MatchString(text) {
			hits++
		}
	}
	score := 100 - float64(hits)*30
	if score < 0 {
		score = 0
	}
	return score
}

// checkConstructiveTone scores the ratio of constructive to total tone
// markers. No markers at all is a neutral 50.
func (c *Checker) checkConstructiveTone(text string) float64 {
	constructive := countMatches(text, constructiveKeywords)
	destructive := countMatches(text, destructiveKeywords)
	if constructive+destructive == 0 {
		return 50
	}
	return float64(constructive) / float64(constructive+destructive) * 100
}

// checkClarity scores average sentence length in words. The sweet spot
// is 8-25 words; shorter reads choppy, longer reads dense.
func (c *Checker) checkClarity(text string) float64 {
	sentences := sentenceSplit.Split(text, -1)
	var lengths []int
	for _, s := range sentences {
		if words := len(strings.Fields(s)); words > 0 {
			lengths = append(lengths, words)
		}
	}
	if len(lengths) == 0 {
		return 0
	}

	total := 0
	for _, l := range lengths {
		total += l
	}
	avg := float64(total) / float64(len(lengths))

	switch {
	case avg >= 8 && avg <= 25:
		return 100
	case avg < 8:
		return avg / 8 * 100
	default:
		score := (1 - (avg-25)/25) * 100
		if score < 0 {
			score = 0
		}
		return score
	}
}

// checkLengthFit buckets the position layer's length against the
// configured band, degrading gently for near misses.
func (c *Checker) checkLengthFit(position string) float64 {
	length := len([]rune(position))
	min, max := c.options.PositionMinChars, c.options.PositionMaxChars

	switch {
	case length >= min && length <= max:
		return 100
	case length >= min-20 && length < min, length > max && length <= max+40:
		return 80
	case length >= min-40 && length < min-20, length > max+40 && length <= max+100:
		return 60
	default:
		return 30
	}
}

// hintText maps a weak criterion to the concrete instruction a retry
// prompt can act on.
var hintText = map[core.Criterion]string{
	core.CriterionBiasConsistency:  "use more of the perspective's own vocabulary and avoid terms it would not use",
	core.CriterionRelevance:        "engage the issue's specifics: its topic, stakeholders, and the core tension",
	core.CriterionNuance:           "add hedging or contrast ('however', 'to some extent') instead of flat assertion",
	core.CriterionStereotypeAvoid:  "remove absolute language like 'always', 'never', 'obviously'",
	core.CriterionConstructiveTone: "frame the stance around solving and improving rather than rejecting",
	core.CriterionClarity:          "keep sentences shorter and more direct",
	core.CriterionLengthFit:        "adjust the position statement to the target length",
}

// hints returns improvement instructions for every criterion scoring
// under 60, worst first so a retry prompt fixes the biggest gap first.
func (c *Checker) hints(subScores map[core.Criterion]float64) []string {
	type weak struct {
		criterion core.Criterion
		score     float64
	}
	var weaks []weak
	for criterion, score := range subScores {
		if score < 60 {
			weaks = append(weaks, weak{criterion, score})
		}
	}
	sort.Slice(weaks, func(i, j int) bool {
		if weaks[i].score != weaks[j].score {
			return weaks[i].score < weaks[j].score
		}
		return weaks[i].criterion < weaks[j].criterion
	})

	hints := make([]string, 0, len(weaks))
	for _, w := range weaks {
		hints = append(hints, fmt.Sprintf("%s (%.0f/100): %s", w.criterion, w.score, hintText[w.criterion]))
	}
	return hints
}

// Report renders a human-readable breakdown of a score for logs and
// run output.
func (c *Checker) Report(score core.QualityScore) string {
	var b strings.Builder
	verdict := "rejected"
	if score.Passed {
		verdict = "accepted"
	}
	fmt.Fprintf(&b, "quality %.0f/100 (%s, %s)", score.Aggregate, score.Grade, verdict)

	criteria := make([]core.Criterion, 0, len(score.SubScores))
	for criterion := range score.SubScores {
		criteria = append(criteria, criterion)
	}
	sort.Slice(criteria, func(i, j int) bool { return criteria[i] < criteria[j] })
	for _, criterion := range criteria {
		fmt.Fprintf(&b, "; %s=%.0f", criterion, score.SubScores[criterion])
	}

	for _, hint := range score.Hints {
		b.WriteString("\n  - " + hint)
	}
	return b.String()
}

func gradeFor(aggregate float64) string {
	switch {
	case aggregate >= 90:
		return "A+"
	case aggregate >= 80:
		return "A"
	case aggregate >= 70:
		return "B+"
	case aggregate >= 60:
		return "B"
	case aggregate >= 50:
		return "C+"
	case aggregate >= 40:
		return "C"
	default:
		return "D"
	}
}

func countMatches(text string, terms []string) int {
	matches := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			matches++
		}
	}
	return matches
}
