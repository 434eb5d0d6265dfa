// Package bias derives per-perspective interpretive guidelines that
// are conditioned on an issue's specific characteristics rather than
// fixed per-perspective stereotypes.
package bias

import (
	"fmt"
	"strings"

	"issuelens/internal/core"
)

// Guideline describes how one perspective frames one specific issue.
type Guideline struct {
	Perspective    core.Perspective
	CoreValues     string // What this perspective protects on this issue
	Approach       string // How it would act on it
	Considerations string // Issue-specific factors it weighs
	Stance         string // The nuanced position, not an absolute
}

// interpretation is one cell of the issue-type x perspective table.
type interpretation struct {
	coreValues     string
	approach       string
	considerations string
	stance         string
}

// interpretations carries distinct guidance for every issue type so
// that two issues of different types never yield the same guideline
// text for the same perspective.
var interpretations = map[core.IssueType]map[core.Perspective]interpretation{
	core.IssueEconomic: {
		core.PerspectiveLeft: {
			coreValues:     "economic fairness, social safety nets, worker protections",
			approach:       "government-led correction of market failures",
			considerations: "limits of markets, public goods, distributive justice",
			stance:         "markets have a role, but fair competition and a safety net must be guaranteed",
		},
		core.PerspectiveCenter: {
			coreValues:     "balance between market efficiency and social protection",
			approach:       "pragmatic mix of market mechanisms and targeted policy",
			considerations: "trade-off between growth and distribution, incremental reform",
			stance:         "adjust the roles of market and state case by case toward sustainable growth",
		},
		core.PerspectiveRight: {
			coreValues:     "market freedom, individual responsibility, competition and innovation",
			approach:       "efficient allocation through market mechanisms",
			considerations: "minimal intervention, business climate, growth drivers",
			stance:         "trust markets first; intervene only minimally and when clearly needed",
		},
	},
	core.IssueEnvironmental: {
		core.PerspectiveLeft: {
			coreValues:     "environmental justice, future generations, corporate accountability",
			approach:       "assertive environmental policy and binding regulation",
			considerations: "climate justice, unequal exposure to harm, public stewardship",
			stance:         "protecting the environment is an obligation shared by firms and government alike",
		},
		core.PerspectiveCenter: {
			coreValues:     "sustainability, evidence-based policy, balanced transition",
			approach:       "reconciling environmental protection with economic development",
			considerations: "phased transition, technological innovation, international cooperation",
			stance:         "pursue protection and development together through feasible, staged measures",
		},
		core.PerspectiveRight: {
			coreValues:     "technological innovation, market mechanisms, economic feasibility",
			approach:       "solving environmental problems through technology and markets",
			considerations: "business autonomy, R&D incentives, competitiveness",
			stance:         "environmental goals are best met by innovation and price signals, not mandates",
		},
	},
	core.IssueSecurity: {
		core.PerspectiveLeft: {
			coreValues:     "peace first, dialogue and cooperation, international law",
			approach:       "diplomatic resolution and multilateral security",
			considerations: "de-escalation over buildup, cooperation with allies and institutions",
			stance:         "credible defense matters, but peaceful resolution should be pursued first",
		},
		core.PerspectiveCenter: {
			coreValues:     "balanced security posture, careful judgment, layered options",
			approach:       "combining deterrence with diplomacy in a comprehensive strategy",
			considerations: "responses proportional to the threat, alliance coordination",
			stance:         "seek peace while preparing realistically for genuine threats",
		},
		core.PerspectiveRight: {
			coreValues:     "strong defense, alliance strength, realistic threat assessment",
			approach:       "security built on credible military capability",
			considerations: "defense investment, alliance commitments, firm responses",
			stance:         "peace holds only through a balance of strength backed by real capability",
		},
	},
	core.IssueTechnological: {
		core.PerspectiveLeft: {
			coreValues:     "digital rights, fair access, protection of the public",
			approach:       "holding technology to social responsibility standards",
			considerations: "digital divides, data protection, algorithmic fairness",
			stance:         "welcome innovation, but citizens' rights and fairness come first",
		},
		core.PerspectiveCenter: {
			coreValues:     "balanced progress, deliberate adoption, stakeholder alignment",
			approach:       "weighing benefits and harms before scaling new technology",
			considerations: "innovation-safety balance, staged rollout, ongoing monitoring",
			stance:         "support advancement with sufficient review and safeguards in place",
		},
		core.PerspectiveRight: {
			coreValues:     "innovation first, market autonomy, competitiveness",
			approach:       "growth and competitiveness through technological leadership",
			considerations: "lighter regulation, support for builders, global standing",
			stance:         "excess regulation chills innovation; let builders move with accountability",
		},
	},
	core.IssueSocial: {
		core.PerspectiveLeft: {
			coreValues:     "protection of the vulnerable, expanded welfare, inclusion",
			approach:       "state-built safety nets and reduction of inequality",
			considerations: "minority rights, social cohesion, fair opportunity",
			stance:         "society is responsible for ensuring everyone a decent life",
		},
		core.PerspectiveCenter: {
			coreValues:     "social cohesion, balanced policy, stepwise improvement",
			approach:       "public-private cooperation on social problems",
			considerations: "efficiency alongside fairness, workable programs",
			stance:         "find the balance point between collective protection and personal responsibility",
		},
		core.PerspectiveRight: {
			coreValues:     "personal responsibility, family and community autonomy, efficiency",
			approach:       "solving social problems through individual and civil-society initiative",
			considerations: "reduced dependency, private-sector delivery, targeted spending",
			stance:         "support the vulnerable toward self-reliance rather than open-ended programs",
		},
	},
	core.IssuePolitical: {
		core.PerspectiveLeft: {
			coreValues:     "progressive values, protection of the disadvantaged, equality and justice",
			approach:       "reform-driven correction of structural unfairness",
			considerations: "fairness, rights of the less powerful, structural causes",
			stance:         "recognize the flaws in the existing order and push for a fairer settlement",
		},
		core.PerspectiveCenter: {
			coreValues:     "balance and compromise, pragmatism, reasoned process",
			approach:       "middle-ground solutions that weigh both sides",
			considerations: "feasibility, broad consensus, incremental change",
			stance:         "avoid the extremes and pursue workable, realistic solutions",
		},
		core.PerspectiveRight: {
			coreValues:     "free markets, personal responsibility, institutional continuity",
			approach:       "problem-solving through market principles and individual autonomy",
			considerations: "limited government, business climate, trust in institutions",
			stance:         "respect what existing institutions get right while improving through competition",
		},
	},
}

// Interpreter turns issue metadata into perspective guidelines.
type Interpreter struct{}

// NewInterpreter creates a bias interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Interpret produces the guideline for one perspective on one issue.
// The output is conditioned on issue type, value conflict, complexity,
// urgency, and stakeholders, so distinct issues of the same perspective
// yield distinct guidance.
func (in *Interpreter) Interpret(perspective core.Perspective, meta core.IssueMetadata) Guideline {
	base := baseInterpretation(perspective, meta.IssueType)

	g := Guideline{
		Perspective:    perspective,
		CoreValues:     base.coreValues,
		Approach:       base.approach,
		Considerations: base.considerations,
		Stance:         base.stance,
	}

	if meta.ValueConflict != "" {
		g.Considerations += fmt.Sprintf("; weigh the %s tension directly", meta.ValueConflict)
	}

	switch {
	case meta.Complexity >= 7:
		g.Approach += ", taking a layered and comprehensive view"
		g.Stance += ", acknowledging the issue's complexity"
	case meta.Complexity <= 3:
		g.Approach += ", staying clear and direct"
		g.Stance += ", keeping to the core of the matter"
	}

	switch {
	case meta.Urgency >= 7:
		g.Approach += ", favoring prompt and effective action"
	case meta.Urgency <= 3:
		g.Approach += ", favoring careful, long-horizon planning"
	}

	g.Considerations += stakeholderAdjustment(meta.Stakeholders)

	return g
}

func baseInterpretation(perspective core.Perspective, issueType core.IssueType) interpretation {
	if byPerspective, ok := interpretations[issueType]; ok {
		if base, ok := byPerspective[perspective]; ok {
			return base
		}
	}
	// Uncategorized issues use the political table as the generic frame.
	return interpretations[core.IssuePolitical][perspective]
}

func stakeholderAdjustment(stakeholders []string) string {
	has := func(name string) bool {
		for _, s := range stakeholders {
			if s == name {
				return true
			}
		}
		return false
	}

	switch {
	case has("corporate") && has("citizen"):
		return "; reconcile business and citizen interests"
	case has("international-body"):
		return "; account for international standards and cooperation"
	case has("expert"):
		return "; ground claims in the available expert analysis"
	default:
		return ""
	}
}

// Text renders the guideline as the prompt-ready block.
func (g Guideline) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contextual reading of the %s perspective:\n\n", g.Perspective)
	fmt.Fprintf(&b, "Core values: %s\n", g.CoreValues)
	fmt.Fprintf(&b, "Approach: %s\n", g.Approach)
	fmt.Fprintf(&b, "Issue-specific considerations: %s\n", g.Considerations)
	fmt.Fprintf(&b, "Nuanced stance: %s\n\n", g.Stance)
	b.WriteString("Cautions:\n")
	b.WriteString("- Do not fall back on fixed stereotypes; reason from this issue's context\n")
	b.WriteString("- Show awareness of how the other perspectives see it\n")
	b.WriteString("- Offer concrete, actionable alternatives\n")
	b.WriteString("- Explain political terms in plain language")
	return b.String()
}
