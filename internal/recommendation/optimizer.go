package recommendation

import (
	"fmt"
	"sort"

	"github.com/claimwise/platform/internal/shared/metrics"
	"github.com/claimwise/platform/internal/shared/types"
)

// PlannedClaim is one claim the optimizer proposes to file, in sequence
type PlannedClaim struct {
	PolicyID       types.ID `json:"policy_id"`
	PolicyNumber   string   `json:"policy_number"`
	Insurer        string   `json:"insurer"`
	CoverageItemID types.ID `json:"coverage_item_id"`
	Category       string   `json:"category"`
	ExpectedPayout float64  `json:"expected_payout"`
	SequenceIndex  int      `json:"sequence_index"`
}

// ClaimPlan is the ordered set of claims maximizing recovered value.
// It becomes authoritative only once the user accepts it.
type ClaimPlan struct {
	Claims              []PlannedClaim `json:"claims"`
	TotalExpectedPayout float64        `json:"total_expected_payout"`
	UnresolvedConflicts []string       `json:"unresolved_conflicts"`
}

// CoverageKey identifies a (policy, category) pair for per-period limits
type CoverageKey struct {
	PolicyID types.ID
	Category string
}

// Optimize builds a claim plan from the ranked matches under
// coordination-of-benefits. Filing order is not free: when multiple
// policies cover the same incident, the policy with the lower or zero
// deductible is sequenced first, and each claim covers only the loss
// remaining after earlier claims pay out, so the same loss is never
// recovered twice. Equal deductibles sequence by score then policy ID.
//
// A candidate may be left out of the plan only for cause: its payout
// against the remaining loss is zero, or its (policy, category)
// allowance for the period is exhausted, counting both planned claims
// and the existing counts of claims already filed this period. Within
// an exhausted allowance the search picks the combination maximizing
// total payout; ties prefer fewer claims filed.
//
// The search enumerates include/skip choices exhaustively. That is
// exponential in the worst case, but the candidate set is bounded by
// the user's policy count times coverage items per incident, single
// digits in practice, and capped by the configured plan size, so no
// general solver is needed.
//
// Cap-blocked candidates are reported in UnresolvedConflicts and the
// best feasible partial plan is returned rather than an error. An empty
// plan with no conflicts is the clean no-match outcome.
func (e *Engine) Optimize(ranked []Match, claimedAmount float64, existing map[CoverageKey]int) ClaimPlan {
	candidates := sequenceForCoordination(ranked)

	best := &searchState{}
	counts := make(map[CoverageKey]int)
	e.search(candidates, 0, counts, existing, nil, nil, 0, claimedAmount, best)

	plan := ClaimPlan{
		Claims:              best.claims,
		TotalExpectedPayout: best.total,
		UnresolvedConflicts: best.conflicts,
	}
	if plan.Claims == nil {
		plan.Claims = []PlannedClaim{}
	}
	if plan.UnresolvedConflicts == nil {
		plan.UnresolvedConflicts = []string{}
	}

	metrics.RecordPlanBuilt(len(plan.UnresolvedConflicts) == 0, plan.TotalExpectedPayout)

	return plan
}

// sequenceForCoordination orders candidates the way benefits coordinate:
// deductible ascending, ties by score descending, then policy ID
// ascending (the equal-deductible rule is a documented decision, see
// DESIGN.md)
func sequenceForCoordination(ranked []Match) []Match {
	seq := make([]Match, len(ranked))
	copy(seq, ranked)

	sort.SliceStable(seq, func(i, j int) bool {
		if seq[i].Deductible != seq[j].Deductible {
			return seq[i].Deductible < seq[j].Deductible
		}
		if seq[i].Score != seq[j].Score {
			return seq[i].Score > seq[j].Score
		}
		return seq[i].PolicyID < seq[j].PolicyID
	})

	return seq
}

type searchState struct {
	claims    []PlannedClaim
	conflicts []string
	total     float64
	found     bool
}

// skipped records a candidate left out of the running plan and why
type skipped struct {
	match      Match
	capBlocked bool
	payout     float64
}

func (e *Engine) search(
	candidates []Match,
	pos int,
	counts map[CoverageKey]int,
	existing map[CoverageKey]int,
	current []PlannedClaim,
	skips []skipped,
	total float64,
	remaining float64,
	best *searchState,
) {
	if pos == len(candidates) {
		conflicts, ok := justifySkips(skips, counts, existing)
		if !ok {
			return
		}
		if better(total, len(current), best) {
			best.claims = append([]PlannedClaim(nil), current...)
			best.conflicts = conflicts
			best.total = total
			best.found = true
		}
		return
	}

	m := candidates[pos]
	key := CoverageKey{PolicyID: m.PolicyID, Category: m.Category}
	payout := expectedPayout(m.LimitAmount, m.Deductible, remaining)

	capBlocked := counts[key]+existing[key] >= allowancePerPeriod(m)
	planFull := e.maxPlanClaims > 0 && len(current) >= e.maxPlanClaims

	// Include branch
	if payout > 0 && !capBlocked && !planFull {
		counts[key]++
		next := append(current, PlannedClaim{
			PolicyID:       m.PolicyID,
			PolicyNumber:   m.PolicyNumber,
			Insurer:        m.Insurer,
			CoverageItemID: m.CoverageItemID,
			Category:       m.Category,
			ExpectedPayout: payout,
			SequenceIndex:  len(current),
		})
		e.search(candidates, pos+1, counts, existing, next, skips, total+payout, remaining-payout, best)
		counts[key]--
	}

	// Skip branch; justification is checked once the plan is complete,
	// because a later same-key candidate may claim this allowance
	e.search(candidates, pos+1, counts, existing, current,
		append(skips, skipped{match: m, capBlocked: capBlocked || planFull, payout: payout}),
		total, remaining, best)
}

// justifySkips validates that every candidate left out of the plan was
// left out for cause: zero payout at its turn, or an exhausted
// (policy, category) allowance once the final plan counts are known.
// Unjustified skips invalidate the plan: coordination of benefits does
// not allow passing over available primary coverage.
func justifySkips(skips []skipped, finalCounts, existing map[CoverageKey]int) ([]string, bool) {
	var conflicts []string

	for _, s := range skips {
		// A candidate that could never have paid out was skipped for
		// cause regardless of its allowance; it is not a conflict
		if s.payout <= 0 {
			continue
		}

		key := CoverageKey{PolicyID: s.match.PolicyID, Category: s.match.Category}
		if finalCounts[key]+existing[key] >= allowancePerPeriod(s.match) {
			conflicts = append(conflicts, fmt.Sprintf(
				"per-period claim limit reached for policy %s category %s",
				s.match.PolicyNumber, s.match.Category,
			))
			continue
		}
		if s.capBlocked {
			conflicts = append(conflicts, fmt.Sprintf(
				"plan size limit reached before policy %s category %s",
				s.match.PolicyNumber, s.match.Category,
			))
			continue
		}

		return nil, false
	}

	return conflicts, true
}

// better prefers higher total payout, then fewer claims filed
func better(total float64, numClaims int, best *searchState) bool {
	if !best.found {
		return true
	}
	if total != best.total {
		return total > best.total
	}
	return numClaims < len(best.claims)
}

// allowancePerPeriod is how many claims a (policy, category) pair may
// carry in one claim period: the item's max_claims_per_period, or one
// when the item does not specify
func allowancePerPeriod(m Match) int {
	if m.MaxClaimsPerPeriod > 0 {
		return m.MaxClaimsPerPeriod
	}
	return 1
}
