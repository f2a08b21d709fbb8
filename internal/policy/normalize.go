package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/types"
)

// Normalizer validates raw extraction output into PolicyRecords
type Normalizer struct {
	threshold float64
}

// NewNormalizer creates a normalizer with the given confidence threshold
func NewNormalizer(confidenceThreshold float64) *Normalizer {
	return &Normalizer{threshold: confidenceThreshold}
}

// Normalize turns a raw extraction into a validated PolicyRecord.
//
// Required fields are the policy number, the insurer and at least one
// coverage item with a non-empty category. Missing or low-confidence
// fields produce an ExtractionIncomplete result instead of a partial
// record. Malformed input (negative amounts) is rejected with an error
// and never constructs a record.
func (n *Normalizer) Normalize(userID types.ID, raw RawExtraction) (*PolicyRecord, *ExtractionIncomplete, error) {
	if userID.IsZero() {
		return nil, nil, errors.BadRequest("user is required")
	}

	incomplete := &ExtractionIncomplete{Threshold: n.threshold}

	checkField := func(name string, f RawField) {
		if strings.TrimSpace(f.Value) == "" {
			incomplete.MissingFields = append(incomplete.MissingFields, name)
			return
		}
		if f.Confidence < n.threshold {
			incomplete.LowConfidenceFields = append(incomplete.LowConfidenceFields, name)
		}
	}

	checkField("policy_number", raw.PolicyNumber)
	checkField("insurer", raw.Insurer)

	validCoverages := 0
	for i, cov := range raw.Coverages {
		if strings.TrimSpace(cov.Category.Value) == "" {
			continue
		}
		if cov.LimitAmount < 0 {
			return nil, nil, errors.Validation("malformed coverage item", map[string]string{
				"coverage": fmt.Sprintf("coverages[%d]: limit_amount must be non-negative", i),
			})
		}
		if cov.Deductible < 0 {
			return nil, nil, errors.Validation("malformed coverage item", map[string]string{
				"coverage": fmt.Sprintf("coverages[%d]: deductible must be non-negative", i),
			})
		}
		if cov.Category.Confidence < n.threshold {
			incomplete.LowConfidenceFields = append(incomplete.LowConfidenceFields,
				fmt.Sprintf("coverages[%d].category", i))
		}
		validCoverages++
	}
	if validCoverages == 0 {
		incomplete.MissingFields = append(incomplete.MissingFields, "coverages")
	}

	if incomplete.Incomplete() {
		return nil, incomplete, nil
	}

	effective, err := buildPeriod(raw.EffectiveStart, raw.EffectiveEnd)
	if err != nil {
		return nil, nil, errors.Validation("malformed effective period", map[string]string{
			"effective_period": err.Error(),
		})
	}

	record := &PolicyRecord{
		ID:               types.NewID(),
		UserID:           userID,
		PolicyNumber:     strings.TrimSpace(raw.PolicyNumber.Value),
		Insurer:          strings.TrimSpace(raw.Insurer.Value),
		PolicyType:       strings.TrimSpace(raw.PolicyType.Value),
		Effective:        effective,
		Items:            dedupeItems(raw.Coverages),
		SourceConfidence: aggregateConfidence(raw),
		Version:          1,
		CreatedAt:        time.Now().UTC(),
	}

	return record, nil, nil
}

func buildPeriod(start, end time.Time) (types.Period, error) {
	if start.IsZero() && end.IsZero() {
		return types.Period{}, nil
	}
	return types.NewPeriod(start, end)
}

// dedupeItems drops coverage items with an identical
// (category, limit_amount, deductible) triple within one document
func dedupeItems(coverages []RawCoverage) []CoverageItem {
	type key struct {
		category string
		limit    float64
		ded      float64
	}

	seen := make(map[key]bool)
	items := make([]CoverageItem, 0, len(coverages))

	for _, cov := range coverages {
		category := strings.ToLower(strings.TrimSpace(cov.Category.Value))
		if category == "" {
			continue
		}

		k := key{category: category, limit: cov.LimitAmount, ded: cov.Deductible}
		if seen[k] {
			continue
		}
		seen[k] = true

		items = append(items, CoverageItem{
			ID:                 types.NewID(),
			Category:           category,
			Inclusion:          cov.Inclusion,
			Exclusion:          cov.Exclusion,
			LimitAmount:        cov.LimitAmount,
			Deductible:         cov.Deductible,
			WaitingPeriodDays:  cov.WaitingPeriodDays,
			MaxClaimsPerPeriod: cov.MaxClaimsPerPeriod,
		})
	}

	return items
}

// aggregateConfidence is the mean confidence across extracted fields
func aggregateConfidence(raw RawExtraction) float64 {
	sum := raw.PolicyNumber.Confidence + raw.Insurer.Confidence
	count := 2

	if strings.TrimSpace(raw.PolicyType.Value) != "" {
		sum += raw.PolicyType.Confidence
		count++
	}
	for _, cov := range raw.Coverages {
		if strings.TrimSpace(cov.Category.Value) != "" {
			sum += cov.Category.Confidence
			count++
		}
	}

	return sum / float64(count)
}
