package policy

import (
	"time"

	"github.com/claimwise/platform/internal/shared/types"
)

// ConditionKind defines the predicate variants a coverage clause can carry.
// Conditions are declarative data; the recommendation engine evaluates them
// with a single generic interpreter.
type ConditionKind string

const (
	// ConditionDateRange is satisfied when the incident date falls inside [From, To)
	ConditionDateRange ConditionKind = "date_range"
	// ConditionCategoryIn is satisfied when the situation category is one of Values
	ConditionCategoryIn ConditionKind = "category_in"
	// ConditionThreshold compares a numeric situation field against Value using Op
	ConditionThreshold ConditionKind = "threshold"
	// ConditionTagAny is satisfied when any situation tag appears in Values
	ConditionTagAny ConditionKind = "tag_any"
	// ConditionTagExcluded is satisfied when any situation tag appears in Values;
	// used in exclusion lists (e.g. pre-existing, self-inflicted)
	ConditionTagExcluded ConditionKind = "tag_excluded"
)

// Threshold operators
const (
	OpGTE = "gte"
	OpLTE = "lte"
	OpGT  = "gt"
	OpLT  = "lt"
	OpEQ  = "eq"
)

// Numeric situation fields a threshold condition can reference
const (
	FieldClaimedAmount = "claimed_amount"
	FieldSeverity      = "severity"
)

// Condition is one declarative predicate on a coverage clause
type Condition struct {
	Kind   ConditionKind `json:"kind"`
	Label  string        `json:"label"`
	Field  string        `json:"field,omitempty"`
	Op     string        `json:"op,omitempty"`
	Value  float64       `json:"value,omitempty"`
	Values []string      `json:"values,omitempty"`
	From   time.Time     `json:"from,omitempty"`
	To     time.Time     `json:"to,omitempty"`
}

// CoverageItem is one insurable clause within a policy
type CoverageItem struct {
	ID                 types.ID    `json:"id"`
	Category           string      `json:"category"`
	Inclusion          []Condition `json:"inclusion_conditions"`
	Exclusion          []Condition `json:"exclusion_conditions"`
	LimitAmount        float64     `json:"limit_amount"`
	Deductible         float64     `json:"deductible"`
	WaitingPeriodDays  int         `json:"waiting_period_days"`
	MaxClaimsPerPeriod int         `json:"max_claims_per_period"`
}

// PolicyRecord is a validated, immutable snapshot of one uploaded policy
// document. Re-uploads supersede the record with a new version rather than
// mutating it.
type PolicyRecord struct {
	ID               types.ID       `json:"id"`
	UserID           types.ID       `json:"user_id"`
	PolicyNumber     string         `json:"policy_number"`
	Insurer          string         `json:"insurer"`
	PolicyType       string         `json:"policy_type"`
	Effective        types.Period   `json:"effective_period"`
	Items            []CoverageItem `json:"coverage_items"`
	SourceConfidence float64        `json:"source_confidence"`
	Version          int            `json:"version"`
	SupersededBy     *types.ID      `json:"superseded_by,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Active reports whether this record is the current version
func (p *PolicyRecord) Active() bool {
	return p.SupersededBy == nil
}

// RawField is one extracted field with its extraction confidence
type RawField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// RawCoverage is one extracted coverage clause, pre-validation
type RawCoverage struct {
	Category           RawField    `json:"category"`
	LimitAmount        float64     `json:"limit_amount"`
	Deductible         float64     `json:"deductible"`
	WaitingPeriodDays  int         `json:"waiting_period_days"`
	MaxClaimsPerPeriod int         `json:"max_claims_per_period"`
	Inclusion          []Condition `json:"inclusion_conditions"`
	Exclusion          []Condition `json:"exclusion_conditions"`
}

// RawExtraction is the untrusted output of the document extraction
// collaborator: field/value pairs with per-field confidence scores.
type RawExtraction struct {
	PolicyNumber   RawField      `json:"policy_number"`
	Insurer        RawField      `json:"insurer"`
	PolicyType     RawField      `json:"policy_type"`
	EffectiveStart time.Time     `json:"effective_start,omitempty"`
	EffectiveEnd   time.Time     `json:"effective_end,omitempty"`
	Coverages      []RawCoverage `json:"coverages"`
}

// ExtractionIncomplete names the fields that prevented normalization.
// It is a structured result, not a failure: callers surface it to the
// user for clarification and re-upload.
type ExtractionIncomplete struct {
	MissingFields       []string `json:"missing_fields,omitempty"`
	LowConfidenceFields []string `json:"low_confidence_fields,omitempty"`
	Threshold           float64  `json:"threshold"`
}

// Incomplete reports whether anything blocked normalization
func (e *ExtractionIncomplete) Incomplete() bool {
	return len(e.MissingFields) > 0 || len(e.LowConfidenceFields) > 0
}
