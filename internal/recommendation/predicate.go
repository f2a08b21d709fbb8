package recommendation

import (
	"fmt"
	"strings"

	"github.com/claimwise/platform/internal/policy"
)

// evaluate is the single interpreter for all declarative condition
// variants. New clause kinds get a case here; matching logic never
// changes when clause types are added.
func evaluate(c policy.Condition, s Situation) bool {
	switch c.Kind {
	case policy.ConditionDateRange:
		if s.IncidentDate.IsZero() {
			return false
		}
		if !c.From.IsZero() && s.IncidentDate.Before(c.From) {
			return false
		}
		if !c.To.IsZero() && !s.IncidentDate.Before(c.To) {
			return false
		}
		return true

	case policy.ConditionCategoryIn:
		for _, v := range c.Values {
			if strings.EqualFold(v, s.Category) {
				return true
			}
		}
		return false

	case policy.ConditionThreshold:
		return compare(numericField(c.Field, s), c.Op, c.Value)

	case policy.ConditionTagAny, policy.ConditionTagExcluded:
		for _, v := range c.Values {
			for _, tag := range s.Tags {
				if strings.EqualFold(v, tag) {
					return true
				}
			}
		}
		return false

	default:
		// Unknown kinds never satisfy; an unrecognized inclusion cannot
		// help, an unrecognized exclusion cannot veto
		return false
	}
}

func numericField(field string, s Situation) float64 {
	switch field {
	case policy.FieldClaimedAmount:
		return s.ClaimedAmount
	case policy.FieldSeverity:
		return s.Severity
	default:
		return 0
	}
}

func compare(actual float64, op string, value float64) bool {
	switch op {
	case policy.OpGTE:
		return actual >= value
	case policy.OpLTE:
		return actual <= value
	case policy.OpGT:
		return actual > value
	case policy.OpLT:
		return actual < value
	case policy.OpEQ:
		return actual == value
	default:
		return false
	}
}

// describe renders a condition for the structured rationale returned to
// the conversational collaborator. Prose formatting belongs to that
// collaborator; this is only a stable identifier.
func describe(c policy.Condition) string {
	if c.Label != "" {
		return c.Label
	}

	switch c.Kind {
	case policy.ConditionDateRange:
		return fmt.Sprintf("incident between %s and %s", c.From.Format("2006-01-02"), c.To.Format("2006-01-02"))
	case policy.ConditionCategoryIn:
		return fmt.Sprintf("category in [%s]", strings.Join(c.Values, ", "))
	case policy.ConditionThreshold:
		return fmt.Sprintf("%s %s %g", c.Field, c.Op, c.Value)
	case policy.ConditionTagAny:
		return fmt.Sprintf("any tag of [%s]", strings.Join(c.Values, ", "))
	case policy.ConditionTagExcluded:
		return fmt.Sprintf("excluded tag of [%s]", strings.Join(c.Values, ", "))
	default:
		return string(c.Kind)
	}
}
