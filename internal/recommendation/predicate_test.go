package recommendation

import (
	"testing"
	"time"

	"github.com/claimwise/platform/internal/policy"
)

func TestEvaluateConditionKinds(t *testing.T) {
	incident, _ := time.Parse("2006-01-02", "2025-06-15")
	from, _ := time.Parse("2006-01-02", "2025-01-01")
	to, _ := time.Parse("2006-01-02", "2026-01-01")

	s := Situation{
		Category:      "hospitalization",
		Tags:          []string{"accident", "abroad"},
		IncidentDate:  incident,
		ClaimedAmount: 4000,
		Severity:      2,
	}

	tests := []struct {
		name string
		cond policy.Condition
		want bool
	}{
		{"date range containing incident", policy.Condition{Kind: policy.ConditionDateRange, From: from, To: to}, true},
		{"date range end is exclusive", policy.Condition{Kind: policy.ConditionDateRange, From: from, To: incident}, false},
		{"date range open ended", policy.Condition{Kind: policy.ConditionDateRange, From: from}, true},
		{"category in, case insensitive", policy.Condition{Kind: policy.ConditionCategoryIn, Values: []string{"Hospitalization"}}, true},
		{"category not in", policy.Condition{Kind: policy.ConditionCategoryIn, Values: []string{"dental"}}, false},
		{"threshold gte satisfied", policy.Condition{Kind: policy.ConditionThreshold, Field: policy.FieldClaimedAmount, Op: policy.OpGTE, Value: 4000}, true},
		{"threshold lt unsatisfied", policy.Condition{Kind: policy.ConditionThreshold, Field: policy.FieldClaimedAmount, Op: policy.OpLT, Value: 4000}, false},
		{"threshold on severity", policy.Condition{Kind: policy.ConditionThreshold, Field: policy.FieldSeverity, Op: policy.OpEQ, Value: 2}, true},
		{"tag any matches", policy.Condition{Kind: policy.ConditionTagAny, Values: []string{"abroad", "winter_sports"}}, true},
		{"tag any no overlap", policy.Condition{Kind: policy.ConditionTagAny, Values: []string{"winter_sports"}}, false},
		{"excluded tag present", policy.Condition{Kind: policy.ConditionTagExcluded, Values: []string{"accident"}}, true},
		{"unknown kind never satisfies", policy.Condition{Kind: policy.ConditionKind("lunar_phase")}, false},
		{"unknown operator never satisfies", policy.Condition{Kind: policy.ConditionThreshold, Field: policy.FieldClaimedAmount, Op: "between", Value: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluate(tt.cond, s); got != tt.want {
				t.Errorf("evaluate(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestEvaluateDateRangeWithoutIncidentDate(t *testing.T) {
	cond := policy.Condition{Kind: policy.ConditionDateRange}
	if evaluate(cond, Situation{Category: "dental"}) {
		t.Errorf("date range condition satisfied with no incident date")
	}
}
