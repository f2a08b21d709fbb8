package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/claimwise/platform/internal/shared/events"
	"github.com/claimwise/platform/internal/shared/types"
)

// Subscriber listens to domain events and creates audit entries
type Subscriber struct {
	repo AuditRepository
	bus  *events.Bus
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo AuditRepository, bus *events.Bus) *Subscriber {
	return &Subscriber{repo: repo, bus: bus}
}

// Start subscribes to all audited event streams
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []string{
		"policy.*",
		"plan.*",
		"claim.*",
		"insurer.*",
	}

	for _, pattern := range patterns {
		if err := s.bus.Subscribe(ctx, pattern, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
	}

	return nil
}

// handleEvent processes incoming events and creates audit entries
func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := s.eventToAuditEntry(event)
	if entry == nil {
		return nil // Skip events that don't need auditing
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// eventToAuditEntry converts a domain event to an audit entry
func (s *Subscriber) eventToAuditEntry(event events.Event) *AuditEntry {
	parts := strings.SplitN(event.Type, ".", 2)
	if len(parts) < 2 {
		return nil
	}

	resourceType := parts[0]
	action := event.Type

	// Extract resource ID from event data
	var resourceID *types.ID
	if data, ok := event.Data.(map[string]any); ok {
		idFields := []string{
			resourceType + "_id",
			"id",
		}
		for _, field := range idFields {
			if idVal, ok := data[field]; ok {
				if idStr, ok := idVal.(string); ok {
					id := types.ID(idStr)
					resourceID = &id
					break
				}
				if id, ok := idVal.(types.ID); ok {
					resourceID = &id
					break
				}
			}
		}
	}

	actorType := ActorTypeUser
	switch event.ActorType {
	case "adjuster":
		actorType = ActorTypeAdjuster
	case "insurer":
		actorType = ActorTypeInsurer
	case "system":
		actorType = ActorTypeSystem
	}

	// Truncate timestamp to microseconds for deterministic hash verification
	entry := &AuditEntry{
		ID:           types.NewID(),
		Timestamp:    event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorType:    actorType,
		ActorID:      event.ActorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}

	if event.CorrelationID != "" {
		correlationID := types.ID(event.CorrelationID)
		entry.CorrelationID = &correlationID
	}

	if data, ok := event.Data.(map[string]any); ok {
		entry.Changes = data
	}

	return entry
}
