package recommendation

import (
	"time"

	"github.com/claimwise/platform/internal/policy"
	"github.com/claimwise/platform/internal/shared/metrics"
	"github.com/claimwise/platform/internal/shared/types"
)

// Match is a scored candidate pairing of the situation with one coverage
// item. Produced by Match, ordered by Rank, consumed by Optimize; never
// persisted standalone.
type Match struct {
	PolicyID       types.ID `json:"policy_id"`
	PolicyNumber   string   `json:"policy_number"`
	Insurer        string   `json:"insurer"`
	CoverageItemID types.ID `json:"coverage_item_id"`
	Category       string   `json:"category"`

	Score                 float64  `json:"score"`
	SatisfiedConditions   []string `json:"satisfied_conditions"`
	UnsatisfiedConditions []string `json:"unsatisfied_conditions"`
	EstimatedPayout       float64  `json:"estimated_payout"`
	LowConfidence         bool     `json:"low_confidence"`

	// Carried for coordination-of-benefits resequencing
	LimitAmount        float64 `json:"limit_amount"`
	Deductible         float64 `json:"deductible"`
	MaxClaimsPerPeriod int     `json:"max_claims_per_period"`
}

// Engine runs coverage matching, ranking and multi-policy optimization.
// All three are pure computations over the request snapshot: no I/O, no
// hidden state, identical input yields identical output.
type Engine struct {
	minScore      float64
	maxPlanClaims int
}

// NewEngine creates an engine with the configured thresholds
func NewEngine(minScore float64, maxPlanClaims int) *Engine {
	return &Engine{minScore: minScore, maxPlanClaims: maxPlanClaims}
}

// Match evaluates the situation against every coverage item of every
// supplied policy. An empty result is a valid, reportable outcome
// (no matching coverage), not an error.
func (e *Engine) Match(req Request) []Match {
	var matches []Match

	for pi := range req.Policies {
		p := &req.Policies[pi]
		for ii := range p.Items {
			item := &p.Items[ii]

			if m, ok := e.matchItem(p, item, req.Situation); ok {
				matches = append(matches, m)
			}
		}
	}

	return matches
}

func (e *Engine) matchItem(p *policy.PolicyRecord, item *policy.CoverageItem, s Situation) (Match, bool) {
	// Exclusions are a hard veto: a satisfied exclusion removes the item
	// entirely, no score emitted
	for _, cond := range item.Exclusion {
		if evaluate(cond, s) {
			metrics.RecordMatchOutcome("excluded")
			return Match{}, false
		}
	}

	// Waiting period is a veto of the same kind
	if inWaitingPeriod(p, item, s) {
		metrics.RecordMatchOutcome("waiting_period")
		return Match{}, false
	}

	score, satisfied, unsatisfied := e.scoreInclusions(item, s)
	if score <= 0 {
		metrics.RecordMatchOutcome("no_match")
		return Match{}, false
	}

	metrics.RecordMatchOutcome("matched")
	return Match{
		PolicyID:              p.ID,
		PolicyNumber:          p.PolicyNumber,
		Insurer:               p.Insurer,
		CoverageItemID:        item.ID,
		Category:              item.Category,
		Score:                 score,
		SatisfiedConditions:   satisfied,
		UnsatisfiedConditions: unsatisfied,
		EstimatedPayout:       expectedPayout(item.LimitAmount, item.Deductible, s.ClaimedAmount),
		LimitAmount:           item.LimitAmount,
		Deductible:            item.Deductible,
		MaxClaimsPerPeriod:    item.MaxClaimsPerPeriod,
	}, true
}

// scoreInclusions computes the satisfied-inclusion ratio, clamped to
// [0,1]. An item with no inclusion predicates is unconditionally
// eligible once exclusions have passed.
func (e *Engine) scoreInclusions(item *policy.CoverageItem, s Situation) (float64, []string, []string) {
	satisfied := []string{}
	unsatisfied := []string{}

	if len(item.Inclusion) == 0 {
		return 1.0, satisfied, unsatisfied
	}

	for _, cond := range item.Inclusion {
		if evaluate(cond, s) {
			satisfied = append(satisfied, describe(cond))
		} else {
			unsatisfied = append(unsatisfied, describe(cond))
		}
	}

	score := float64(len(satisfied)) / float64(len(item.Inclusion))
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return score, satisfied, unsatisfied
}

// inWaitingPeriod reports whether the incident falls inside the item's
// waiting period counted from the policy's effective start
func inWaitingPeriod(p *policy.PolicyRecord, item *policy.CoverageItem, s Situation) bool {
	if item.WaitingPeriodDays <= 0 || p.Effective.Start.IsZero() || s.IncidentDate.IsZero() {
		return false
	}
	waitEnd := p.Effective.Start.Add(time.Duration(item.WaitingPeriodDays) * 24 * time.Hour)
	return s.IncidentDate.Before(waitEnd)
}

// expectedPayout = min(limit, claimed) − deductible, floored at 0
func expectedPayout(limit, deductible, claimed float64) float64 {
	covered := limit
	if claimed < covered {
		covered = claimed
	}
	payout := covered - deductible
	if payout < 0 {
		return 0
	}
	return payout
}
