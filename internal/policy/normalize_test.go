package policy

import (
	"testing"
	"time"

	"github.com/claimwise/platform/internal/shared/types"
)

func field(value string, confidence float64) RawField {
	return RawField{Value: value, Confidence: confidence}
}

func validExtraction() RawExtraction {
	return RawExtraction{
		PolicyNumber: field("HP-2026-104", 0.95),
		Insurer:      field("HealthPlus", 0.9),
		PolicyType:   field("health", 0.9),
		Coverages: []RawCoverage{
			{
				Category:    field("hospitalization", 0.9),
				LimitAmount: 5000,
				Deductible:  200,
			},
		},
	}
}

func TestNormalizeValidExtraction(t *testing.T) {
	n := NewNormalizer(0.6)
	userID := types.NewID()

	record, incomplete, err := n.Normalize(userID, validExtraction())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if incomplete != nil {
		t.Fatalf("Expected complete extraction, got %+v", incomplete)
	}

	if record.ID.IsZero() {
		t.Error("Expected non-zero record ID")
	}
	if record.UserID != userID {
		t.Error("Record should be owned by the uploading user")
	}
	if record.PolicyNumber != "HP-2026-104" {
		t.Errorf("Expected policy number HP-2026-104, got %s", record.PolicyNumber)
	}
	if record.Version != 1 {
		t.Errorf("Expected version 1, got %d", record.Version)
	}
	if len(record.Items) != 1 {
		t.Fatalf("Expected 1 coverage item, got %d", len(record.Items))
	}
	if record.Items[0].Category != "hospitalization" {
		t.Errorf("Expected category hospitalization, got %s", record.Items[0].Category)
	}
	if !record.Active() {
		t.Error("New record should be active")
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	n := NewNormalizer(0.6)
	userID := types.NewID()

	tests := []struct {
		name    string
		mutate  func(*RawExtraction)
		missing string
	}{
		{"Missing policy number", func(raw *RawExtraction) { raw.PolicyNumber = field("", 0) }, "policy_number"},
		{"Missing insurer", func(raw *RawExtraction) { raw.Insurer = field("  ", 0.9) }, "insurer"},
		{"No coverages", func(raw *RawExtraction) { raw.Coverages = nil }, "coverages"},
		{"Coverage without category", func(raw *RawExtraction) {
			raw.Coverages = []RawCoverage{{Category: field("", 0.9), LimitAmount: 100}}
		}, "coverages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validExtraction()
			tt.mutate(&raw)

			record, incomplete, err := n.Normalize(userID, raw)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if record != nil {
				t.Fatal("Expected no record for incomplete extraction")
			}
			if incomplete == nil {
				t.Fatal("Expected ExtractionIncomplete result")
			}

			found := false
			for _, f := range incomplete.MissingFields {
				if f == tt.missing {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected %s in missing fields, got %v", tt.missing, incomplete.MissingFields)
			}
		})
	}
}

func TestNormalizeLowConfidence(t *testing.T) {
	n := NewNormalizer(0.6)

	raw := validExtraction()
	raw.Insurer = field("HealthPlus", 0.3)

	record, incomplete, err := n.Normalize(types.NewID(), raw)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if record != nil {
		t.Fatal("Expected no record for low-confidence extraction")
	}
	if incomplete == nil || len(incomplete.LowConfidenceFields) != 1 {
		t.Fatalf("Expected 1 low-confidence field, got %+v", incomplete)
	}
	if incomplete.LowConfidenceFields[0] != "insurer" {
		t.Errorf("Expected insurer flagged, got %s", incomplete.LowConfidenceFields[0])
	}
}

func TestNormalizeRejectsNegativeAmounts(t *testing.T) {
	n := NewNormalizer(0.6)

	raw := validExtraction()
	raw.Coverages[0].LimitAmount = -100

	record, incomplete, err := n.Normalize(types.NewID(), raw)
	if err == nil {
		t.Fatal("Expected error for negative limit amount")
	}
	if record != nil || incomplete != nil {
		t.Error("Malformed input should construct nothing")
	}
}

func TestNormalizeDeduplicatesItems(t *testing.T) {
	n := NewNormalizer(0.6)

	raw := validExtraction()
	raw.Coverages = []RawCoverage{
		{Category: field("dental", 0.9), LimitAmount: 1000, Deductible: 50},
		{Category: field("Dental", 0.9), LimitAmount: 1000, Deductible: 50},
		{Category: field("dental", 0.9), LimitAmount: 2000, Deductible: 50},
	}

	record, incomplete, err := n.Normalize(types.NewID(), raw)
	if err != nil || incomplete != nil {
		t.Fatalf("Expected clean normalization, got err=%v incomplete=%+v", err, incomplete)
	}

	// Identical (category, limit, deductible) deduplicated, different limit kept
	if len(record.Items) != 2 {
		t.Fatalf("Expected 2 items after dedup, got %d", len(record.Items))
	}
}

func TestNormalizeEffectivePeriod(t *testing.T) {
	n := NewNormalizer(0.6)

	raw := validExtraction()
	raw.EffectiveStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw.EffectiveEnd = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	record, _, err := n.Normalize(types.NewID(), raw)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !record.Effective.Contains(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("Effective period should contain mid-period date")
	}

	// Inverted period is malformed input
	raw.EffectiveEnd = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err = n.Normalize(types.NewID(), raw)
	if err == nil {
		t.Error("Expected error for inverted effective period")
	}
}
