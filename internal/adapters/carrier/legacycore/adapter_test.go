package legacycore

import (
	"testing"

	"github.com/claimwise/platform/internal/adapters/carrier"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected carrier.RemoteStatus
	}{
		{"R", carrier.RemoteStatusReceived},
		{"REC", carrier.RemoteStatusReceived},
		{"RECEIVED", carrier.RemoteStatusReceived},
		{"P", carrier.RemoteStatusInReview},
		{"IN_PROCESS", carrier.RemoteStatusInReview},
		{"IN_REVIEW", carrier.RemoteStatusInReview},
		{"A", carrier.RemoteStatusApproved},
		{"APPROVED", carrier.RemoteStatusApproved},
		{"D", carrier.RemoteStatusRejected},
		{"DECLINED", carrier.RemoteStatusRejected},
		{"PD", carrier.RemoteStatusPaid},
		{"SETTLED", carrier.RemoteStatusPaid},
		{"", carrier.RemoteStatusReceived},
		{"UNKNOWN_CODE", carrier.RemoteStatusReceived},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := mapStatus(tt.code); got != tt.expected {
				t.Errorf("mapStatus(%q) = %s, want %s", tt.code, got, tt.expected)
			}
		})
	}
}

func TestDefaultLegacyConfig(t *testing.T) {
	cfg := DefaultLegacyConfig()

	if cfg.ClaimTable != "dbo.Claims" {
		t.Errorf("unexpected claim table %q", cfg.ClaimTable)
	}
	if cfg.StatusAuditTable != "dbo.ClaimStatusAudit" {
		t.Errorf("unexpected status audit table %q", cfg.StatusAuditTable)
	}
	if cfg.Port != 1433 {
		t.Errorf("unexpected default port %d", cfg.Port)
	}
}

func TestNewAdapterNotConnected(t *testing.T) {
	a, err := New(DefaultLegacyConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.IsConnected() {
		t.Error("adapter should not report connected before Start")
	}
	if a.SourceSystem() != "legacycore" {
		t.Errorf("unexpected source system %q", a.SourceSystem())
	}
}
