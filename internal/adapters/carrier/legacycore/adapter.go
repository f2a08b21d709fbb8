package legacycore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/claimwise/platform/internal/adapters/carrier"
)

// Adapter implements carrier.Adapter for insurers running the legacy
// claims core, which exposes claim state through a SQL Server database
type Adapter struct {
	db     *sql.DB
	config Config

	statusChan chan carrier.StatusUpdateEvent

	running  bool
	mu       sync.RWMutex
	cancel   context.CancelFunc
	lastPoll time.Time
	wg       sync.WaitGroup
}

// Config holds legacy core adapter configuration
type Config struct {
	carrier.Config

	// Legacy core table names
	ClaimTable       string `json:"claim_table"`
	StatusAuditTable string `json:"status_audit_table"`
}

// DefaultLegacyConfig returns default legacy core configuration
func DefaultLegacyConfig() Config {
	return Config{
		Config:           carrier.DefaultConfig(),
		ClaimTable:       "dbo.Claims",
		StatusAuditTable: "dbo.ClaimStatusAudit",
	}
}

// New creates a new legacy core adapter
func New(cfg Config) (*Adapter, error) {
	return &Adapter{
		config:     cfg,
		statusChan: make(chan carrier.StatusUpdateEvent, cfg.EventBufferSize),
	}, nil
}

// Start initializes the database connection and starts polling
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.config.Host,
		a.config.Port,
		a.config.Database,
		a.config.User,
		a.config.Password,
	)

	if a.config.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.config.PollInterval)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	return nil
}

// Stop stops the adapter and closes connections
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(a.statusChan)

	if a.db != nil {
		a.db.Close()
	}

	a.running = false
	return nil
}

// Health checks database connectivity
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return fmt.Errorf("adapter not running")
	}

	return a.db.PingContext(ctx)
}

// SourceSystem returns the source system name
func (a *Adapter) SourceSystem() string {
	return "legacycore"
}

// InsurerCode returns the carrier this adapter is configured for
func (a *Adapter) InsurerCode() string {
	return a.config.Config.InsurerCode
}

// IsConnected returns connection status
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running && a.db != nil
}

// FetchClaimStatus retrieves the current state of a claim by insurer reference
func (a *Adapter) FetchClaimStatus(ctx context.Context, insurerRef string) (*carrier.RemoteClaimStatus, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("adapter not connected")
	}

	query := fmt.Sprintf(`
		SELECT
			ClaimRef,
			Status,
			ApprovedAmount,
			DecisionReason,
			LastModified
		FROM %s
		WHERE ClaimRef = @ref
	`, a.config.ClaimTable)

	row := a.db.QueryRowContext(ctx, query, sql.Named("ref", insurerRef))

	var status carrier.RemoteClaimStatus
	var rawStatus string
	var approved sql.NullFloat64
	var reason sql.NullString

	err := row.Scan(
		&status.InsurerRef,
		&rawStatus,
		&approved,
		&reason,
		&status.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("claim not found: %s", insurerRef)
		}
		return nil, fmt.Errorf("failed to fetch claim status: %w", err)
	}

	if approved.Valid {
		status.ApprovedAmount = &approved.Float64
	}
	if reason.Valid {
		status.Reason = reason.String
	}

	status.Status = mapStatus(rawStatus)
	status.SourceSystem = a.SourceSystem()

	return &status, nil
}

// SubscribeStatusUpdates registers a handler for status change events
func (a *Adapter) SubscribeStatusUpdates(ctx context.Context, handler carrier.StatusHandler) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-a.statusChan:
				if !ok {
					return
				}
				handler(event)
			}
		}
	}()
	return nil
}

// pollLoop polls the status audit table for changes
func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			lastPoll := a.lastPoll
			a.lastPoll = time.Now()
			a.mu.Unlock()

			if err := a.pollStatusChanges(ctx, lastPoll); err != nil {
				// Log error but continue
				fmt.Printf("Error polling claim status changes: %v\n", err)
			}
		}
	}
}

// pollStatusChanges checks for status changes since lastPoll
func (a *Adapter) pollStatusChanges(ctx context.Context, since time.Time) error {
	query := fmt.Sprintf(`
		SELECT
			s.AuditID,
			s.ChangedAt,
			s.ClaimRef,
			s.NewStatus,
			c.ApprovedAmount,
			s.Reason
		FROM %s s
		INNER JOIN %s c ON s.ClaimRef = c.ClaimRef
		WHERE s.ChangedAt > @since
		ORDER BY s.ChangedAt ASC
	`, a.config.StatusAuditTable, a.config.ClaimTable)

	rows, err := a.db.QueryContext(ctx, query, sql.Named("since", since))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var event carrier.StatusUpdateEvent
		var rawStatus string
		var approved sql.NullFloat64
		var reason sql.NullString

		err := rows.Scan(
			&event.EventID,
			&event.Timestamp,
			&event.InsurerRef,
			&rawStatus,
			&approved,
			&reason,
		)
		if err != nil {
			continue
		}

		if approved.Valid {
			event.ApprovedAmount = &approved.Float64
		}
		if reason.Valid {
			event.Reason = reason.String
		}

		event.Status = mapStatus(rawStatus)
		event.SourceSystem = a.SourceSystem()
		event.InsurerCode = a.InsurerCode()

		select {
		case a.statusChan <- event:
		default:
			// Channel full, skip event
		}
	}

	return nil
}

// mapStatus maps legacy core status codes to the common vocabulary
func mapStatus(code string) carrier.RemoteStatus {
	switch code {
	case "R", "REC", "RECEIVED":
		return carrier.RemoteStatusReceived
	case "P", "PROC", "IN_PROCESS", "IN_REVIEW":
		return carrier.RemoteStatusInReview
	case "A", "APP", "APPROVED":
		return carrier.RemoteStatusApproved
	case "D", "REJ", "DECLINED", "REJECTED":
		return carrier.RemoteStatusRejected
	case "PD", "PAID", "SETTLED":
		return carrier.RemoteStatusPaid
	default:
		return carrier.RemoteStatusReceived
	}
}

// Verify interface implementation
var _ carrier.Adapter = (*Adapter)(nil)
