package recommendation

import (
	"reflect"
	"strings"
	"testing"

	"github.com/claimwise/platform/internal/policy"
	"github.com/claimwise/platform/internal/shared/types"
)

// The canonical coordination scenario run through the full pipeline:
// AccidentCare covers accidental injury (limit 3000, no deductible),
// HealthPlus covers hospitalization (limit 5000, deductible 200), and an
// accidental fall claims 4000. HealthPlus ranks first on standalone
// payout, but benefits coordinate zero-deductible first, so AccidentCare
// pays 3000 and HealthPlus covers the 1000 remainder for 800.
func TestOptimizeCoordinatesAcrossPolicies(t *testing.T) {
	engine := NewEngine(0.5, 10)

	policyA := testPolicy("policy-a", "AC-100", "AccidentCare", policy.CoverageItem{
		ID:       types.ID("item-a"),
		Category: "accidental_injury",
		Inclusion: []policy.Condition{
			tagCondition(policy.ConditionTagAny, "accident"),
		},
		LimitAmount: 3000,
		Deductible:  0,
	})
	policyB := testPolicy("policy-b", "HP-200", "HealthPlus", policy.CoverageItem{
		ID:       types.ID("item-b"),
		Category: "hospitalization",
		Inclusion: []policy.Condition{
			tagCondition(policy.ConditionTagAny, "hospitalization"),
		},
		LimitAmount: 5000,
		Deductible:  200,
	})

	req := Request{
		UserID:    types.ID("user-1"),
		Policies:  []policy.PolicyRecord{policyA, policyB},
		Situation: testSituation(4000, "accident", "hospitalization"),
	}

	ranked := engine.Rank(engine.Match(req))
	if len(ranked) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(ranked))
	}
	if ranked[0].PolicyID != types.ID("policy-b") {
		t.Fatalf("expected HealthPlus to rank first on standalone payout, got %s", ranked[0].PolicyID)
	}

	plan := engine.Optimize(ranked, 4000, nil)

	if len(plan.Claims) != 2 {
		t.Fatalf("expected 2 planned claims, got %d", len(plan.Claims))
	}
	if plan.Claims[0].PolicyID != types.ID("policy-a") || plan.Claims[0].ExpectedPayout != 3000 {
		t.Errorf("first claim: expected policy-a paying 3000, got %s paying %g",
			plan.Claims[0].PolicyID, plan.Claims[0].ExpectedPayout)
	}
	if plan.Claims[1].PolicyID != types.ID("policy-b") || plan.Claims[1].ExpectedPayout != 800 {
		t.Errorf("second claim: expected policy-b paying 800 on the remainder, got %s paying %g",
			plan.Claims[1].PolicyID, plan.Claims[1].ExpectedPayout)
	}
	if plan.TotalExpectedPayout != 3800 {
		t.Errorf("expected total payout 3800, got %g", plan.TotalExpectedPayout)
	}
	for i, c := range plan.Claims {
		if c.SequenceIndex != i {
			t.Errorf("claim %d has sequence index %d", i, c.SequenceIndex)
		}
	}
	if len(plan.UnresolvedConflicts) != 0 {
		t.Errorf("unexpected conflicts: %v", plan.UnresolvedConflicts)
	}
}

func TestOptimizeEmptyMatches(t *testing.T) {
	engine := NewEngine(0.5, 10)

	plan := engine.Optimize(nil, 4000, nil)

	if plan.Claims == nil || len(plan.Claims) != 0 {
		t.Errorf("expected empty claim list, got %v", plan.Claims)
	}
	if plan.TotalExpectedPayout != 0 {
		t.Errorf("expected zero total, got %g", plan.TotalExpectedPayout)
	}
	if plan.UnresolvedConflicts == nil || len(plan.UnresolvedConflicts) != 0 {
		t.Errorf("expected no conflicts, got %v", plan.UnresolvedConflicts)
	}
}

func TestOptimizePerPeriodAllowance(t *testing.T) {
	engine := NewEngine(0.5, 10)

	// Two coverage items on the same policy and category, one claim
	// allowed per period. The search keeps the higher-value item and
	// reports the other as an unresolved conflict.
	small := Match{
		PolicyID:       types.ID("policy-a"),
		PolicyNumber:   "AC-100",
		CoverageItemID: types.ID("item-small"),
		Category:       "accidental_injury",
		Score:          1.0,
		LimitAmount:    1000,
	}
	large := Match{
		PolicyID:       types.ID("policy-a"),
		PolicyNumber:   "AC-100",
		CoverageItemID: types.ID("item-large"),
		Category:       "accidental_injury",
		Score:          1.0,
		LimitAmount:    5000,
	}

	plan := engine.Optimize([]Match{large, small}, 3000, nil)

	if len(plan.Claims) != 1 {
		t.Fatalf("expected 1 planned claim, got %d", len(plan.Claims))
	}
	if plan.Claims[0].CoverageItemID != types.ID("item-large") {
		t.Errorf("expected the higher-value item to win the allowance, got %s", plan.Claims[0].CoverageItemID)
	}
	if plan.TotalExpectedPayout != 3000 {
		t.Errorf("expected total 3000, got %g", plan.TotalExpectedPayout)
	}
	if len(plan.UnresolvedConflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %v", plan.UnresolvedConflicts)
	}
	if !strings.Contains(plan.UnresolvedConflicts[0], "AC-100") ||
		!strings.Contains(plan.UnresolvedConflicts[0], "accidental_injury") {
		t.Errorf("conflict should name the policy and category: %q", plan.UnresolvedConflicts[0])
	}
}

func TestOptimizeExistingClaimsConsumeAllowance(t *testing.T) {
	engine := NewEngine(0.5, 10)

	m := Match{
		PolicyID:       types.ID("policy-a"),
		PolicyNumber:   "AC-100",
		CoverageItemID: types.ID("item-a"),
		Category:       "accidental_injury",
		Score:          1.0,
		LimitAmount:    3000,
	}
	existing := map[CoverageKey]int{
		{PolicyID: types.ID("policy-a"), Category: "accidental_injury"}: 1,
	}

	plan := engine.Optimize([]Match{m}, 2000, existing)

	if len(plan.Claims) != 0 {
		t.Fatalf("expected no planned claims when the period allowance is spent, got %d", len(plan.Claims))
	}
	if len(plan.UnresolvedConflicts) != 1 {
		t.Fatalf("expected the blocked candidate reported as a conflict, got %v", plan.UnresolvedConflicts)
	}
}

func TestOptimizeRespectsMaxClaimsPerPeriod(t *testing.T) {
	engine := NewEngine(0.5, 10)

	// MaxClaimsPerPeriod of 2 lets both items on the same key into the
	// plan; the second covers only the remainder.
	first := Match{
		PolicyID:           types.ID("policy-a"),
		PolicyNumber:       "AC-100",
		CoverageItemID:     types.ID("item-1"),
		Category:           "accidental_injury",
		Score:              1.0,
		LimitAmount:        1500,
		MaxClaimsPerPeriod: 2,
	}
	second := Match{
		PolicyID:           types.ID("policy-a"),
		PolicyNumber:       "AC-100",
		CoverageItemID:     types.ID("item-2"),
		Category:           "accidental_injury",
		Score:              1.0,
		LimitAmount:        1500,
		MaxClaimsPerPeriod: 2,
	}

	plan := engine.Optimize([]Match{first, second}, 2000, nil)

	if len(plan.Claims) != 2 {
		t.Fatalf("expected 2 planned claims, got %d", len(plan.Claims))
	}
	if plan.TotalExpectedPayout != 2000 {
		t.Errorf("expected total 2000 (1500 then the 500 remainder), got %g", plan.TotalExpectedPayout)
	}
	if len(plan.UnresolvedConflicts) != 0 {
		t.Errorf("unexpected conflicts: %v", plan.UnresolvedConflicts)
	}
}

func TestOptimizeSkipsExhaustedLossWithoutConflict(t *testing.T) {
	engine := NewEngine(0.5, 10)

	primary := Match{
		PolicyID:       types.ID("policy-a"),
		PolicyNumber:   "AC-100",
		CoverageItemID: types.ID("item-a"),
		Category:       "accidental_injury",
		Score:          1.0,
		LimitAmount:    5000,
	}
	secondary := Match{
		PolicyID:       types.ID("policy-b"),
		PolicyNumber:   "HP-200",
		CoverageItemID: types.ID("item-b"),
		Category:       "hospitalization",
		Score:          1.0,
		LimitAmount:    5000,
		Deductible:     200,
	}

	plan := engine.Optimize([]Match{primary, secondary}, 3000, nil)

	if len(plan.Claims) != 1 {
		t.Fatalf("expected 1 planned claim once the loss is fully recovered, got %d", len(plan.Claims))
	}
	if plan.TotalExpectedPayout != 3000 {
		t.Errorf("expected total 3000, got %g", plan.TotalExpectedPayout)
	}
	if len(plan.UnresolvedConflicts) != 0 {
		t.Errorf("an exhausted loss is not a conflict, got %v", plan.UnresolvedConflicts)
	}
}

func TestOptimizeZeroPayoutSkipIsSilentWhenAllowanceSpent(t *testing.T) {
	engine := NewEngine(0.5, 10)

	// The primary recovers the whole loss, so the secondary's payout at
	// its turn is zero. Its period allowance is also already spent. A
	// candidate that could never have paid out is skipped for cause, not
	// reported against the allowance.
	primary := Match{
		PolicyID:       types.ID("policy-a"),
		PolicyNumber:   "AC-100",
		CoverageItemID: types.ID("item-a"),
		Category:       "accidental_injury",
		Score:          1.0,
		LimitAmount:    5000,
	}
	secondary := Match{
		PolicyID:       types.ID("policy-b"),
		PolicyNumber:   "HP-200",
		CoverageItemID: types.ID("item-b"),
		Category:       "hospitalization",
		Score:          0.8,
		LimitAmount:    5000,
	}
	existing := map[CoverageKey]int{
		{PolicyID: types.ID("policy-b"), Category: "hospitalization"}: 1,
	}

	plan := engine.Optimize([]Match{primary, secondary}, 3000, existing)

	if len(plan.Claims) != 1 {
		t.Fatalf("expected 1 planned claim, got %d", len(plan.Claims))
	}
	if plan.Claims[0].PolicyID != types.ID("policy-a") {
		t.Errorf("expected policy-a to recover the loss, got %s", plan.Claims[0].PolicyID)
	}
	if plan.TotalExpectedPayout != 3000 {
		t.Errorf("expected total 3000, got %g", plan.TotalExpectedPayout)
	}
	if len(plan.UnresolvedConflicts) != 0 {
		t.Errorf("a zero-payout skip is not an allowance conflict, got %v", plan.UnresolvedConflicts)
	}
}

func TestOptimizePlanSizeLimit(t *testing.T) {
	engine := NewEngine(0.5, 1)

	matches := []Match{
		{
			PolicyID:       types.ID("policy-a"),
			PolicyNumber:   "AC-100",
			CoverageItemID: types.ID("item-a"),
			Category:       "accidental_injury",
			Score:          1.0,
			LimitAmount:    3000,
		},
		{
			PolicyID:       types.ID("policy-b"),
			PolicyNumber:   "HP-200",
			CoverageItemID: types.ID("item-b"),
			Category:       "hospitalization",
			Score:          1.0,
			LimitAmount:    5000,
			Deductible:     200,
		},
	}

	plan := engine.Optimize(matches, 10000, nil)

	if len(plan.Claims) != 1 {
		t.Fatalf("expected the plan capped at 1 claim, got %d", len(plan.Claims))
	}
	if len(plan.UnresolvedConflicts) != 1 {
		t.Fatalf("expected the capped-out candidate reported, got %v", plan.UnresolvedConflicts)
	}
}

func TestOptimizeDeterministic(t *testing.T) {
	engine := NewEngine(0.5, 10)

	matches := []Match{
		{PolicyID: types.ID("policy-b"), PolicyNumber: "HP-200", CoverageItemID: types.ID("item-b"),
			Category: "hospitalization", Score: 1.0, LimitAmount: 5000, Deductible: 200},
		{PolicyID: types.ID("policy-a"), PolicyNumber: "AC-100", CoverageItemID: types.ID("item-a"),
			Category: "accidental_injury", Score: 1.0, LimitAmount: 3000},
	}

	first := engine.Optimize(matches, 4000, nil)
	second := engine.Optimize(matches, 4000, nil)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated optimization of identical input diverged:\n%+v\n%+v", first, second)
	}
}
