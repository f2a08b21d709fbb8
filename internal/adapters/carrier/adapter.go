package carrier

import (
	"context"
	"time"
)

// Adapter defines the interface for insurer claim system adapters.
// Implementations connect to a specific carrier backend (legacy core,
// portal API, etc.) and surface claim status changes to the platform.
type Adapter interface {
	// FetchClaimStatus retrieves the current remote state of a claim
	// by the reference the insurer assigned when it was filed
	FetchClaimStatus(ctx context.Context, insurerRef string) (*RemoteClaimStatus, error)

	// SubscribeStatusUpdates registers a handler for status change events
	SubscribeStatusUpdates(ctx context.Context, handler StatusHandler) error

	// Adapter metadata
	SourceSystem() string
	InsurerCode() string
	IsConnected() bool

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) error
}

// StatusHandler is called when a claim status change is detected
type StatusHandler func(event StatusUpdateEvent)

// RemoteStatus is the carrier-side claim state vocabulary. Adapters
// normalize whatever their backend reports into these values.
type RemoteStatus string

const (
	RemoteStatusReceived RemoteStatus = "RECEIVED"
	RemoteStatusInReview RemoteStatus = "IN_REVIEW"
	RemoteStatusApproved RemoteStatus = "APPROVED"
	RemoteStatusRejected RemoteStatus = "REJECTED"
	RemoteStatusPaid     RemoteStatus = "PAID"
)

// RemoteClaimStatus is a point-in-time snapshot of a claim in the
// carrier's system
type RemoteClaimStatus struct {
	InsurerRef     string       `json:"insurer_ref"`
	Status         RemoteStatus `json:"status"`
	ApprovedAmount *float64     `json:"approved_amount,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
	SourceSystem   string       `json:"source_system"`
}

// StatusUpdateEvent represents a detected claim status change
type StatusUpdateEvent struct {
	EventID        string       `json:"event_id"`
	Timestamp      time.Time    `json:"timestamp"`
	InsurerRef     string       `json:"insurer_ref"`
	Status         RemoteStatus `json:"status"`
	ApprovedAmount *float64     `json:"approved_amount,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	SourceSystem   string       `json:"source_system"`
	InsurerCode    string       `json:"insurer_code"`
}

// Config holds common configuration for carrier adapters
type Config struct {
	// Database connection
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`

	// Carrier info
	InsurerCode string `json:"insurer_code"`
	InsurerName string `json:"insurer_name"`

	// Polling configuration
	PollInterval    time.Duration `json:"poll_interval"`
	BatchSize       int           `json:"batch_size"`
	ConnectionRetry time.Duration `json:"connection_retry"`

	// Event publishing
	EventBufferSize int `json:"event_buffer_size"`
}

// DefaultConfig returns default adapter configuration
func DefaultConfig() Config {
	return Config{
		Port:            1433, // SQL Server default
		SSLMode:         "disable",
		PollInterval:    30 * time.Second,
		BatchSize:       100,
		ConnectionRetry: 30 * time.Second,
		EventBufferSize: 1000,
	}
}
