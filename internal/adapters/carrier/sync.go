package carrier

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"

	"github.com/claimwise/platform/internal/claim/domain"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/events"
	"github.com/claimwise/platform/internal/shared/metrics"
	"github.com/claimwise/platform/internal/shared/types"
)

const maxSyncRetries = 3

// Syncer applies carrier status updates to local claims. Updates are
// correlated by the insurer-assigned reference and advanced through
// the regular claim lifecycle, so the same transition rules apply to
// adapter traffic as to API traffic.
type Syncer struct {
	repo domain.Repository
	bus  *events.Bus
}

// NewSyncer creates a syncer writing to the given claim repository
func NewSyncer(repo domain.Repository, bus *events.Bus) *Syncer {
	return &Syncer{repo: repo, bus: bus}
}

// Run subscribes the syncer to an adapter's status updates and blocks
// until the context is cancelled
func (s *Syncer) Run(ctx context.Context, adapter Adapter) error {
	err := adapter.SubscribeStatusUpdates(ctx, func(event StatusUpdateEvent) {
		if err := s.Apply(ctx, event); err != nil {
			log.Printf("insurer sync: failed to apply update for ref %s: %v", event.InsurerRef, err)
		}
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// Apply applies a single status update. Stale version conflicts are
// retried with a fresh read; other failures are returned.
func (s *Syncer) Apply(ctx context.Context, event StatusUpdateEvent) error {
	var lastErr error
	for attempt := 0; attempt < maxSyncRetries; attempt++ {
		c, err := s.repo.FindByInsurerRef(ctx, event.InsurerCode, event.InsurerRef)
		if err != nil {
			return err
		}

		changed, err := s.advance(c, event)
		if err != nil {
			metrics.RecordClaimTransitionConflict()
			return err
		}
		if !changed {
			return nil
		}

		err = s.repo.Update(ctx, c, c.Version)
		if err == nil {
			metrics.RecordInsurerSyncUpdate(event.SourceSystem, string(event.Status))
			s.publish(ctx, event, c)
			return nil
		}
		if !stderrors.Is(err, errors.ErrStaleVersion) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// advance walks the claim toward the remote status through allowed
// lifecycle transitions. Returns false when the claim is already at or
// past the reported state.
func (s *Syncer) advance(c *domain.Claim, event StatusUpdateEvent) (bool, error) {
	actor := "insurer:" + event.InsurerCode
	changed := false

	review := func() error {
		if c.Status == domain.ClaimStatusSubmitted {
			if err := c.StartReview(actor); err != nil {
				return err
			}
			changed = true
		}
		return nil
	}

	switch event.Status {
	case RemoteStatusReceived:
		// Acknowledgement only, the local claim was already filed

	case RemoteStatusInReview:
		if err := review(); err != nil {
			return changed, err
		}

	case RemoteStatusApproved:
		if c.Status == domain.ClaimStatusApproved {
			return changed, nil
		}
		if err := review(); err != nil {
			return changed, err
		}
		if err := c.Approve(actor, s.approvedAmount(c, event)); err != nil {
			return changed, err
		}
		changed = true

	case RemoteStatusRejected:
		if c.Status == domain.ClaimStatusRejected {
			return changed, nil
		}
		if err := review(); err != nil {
			return changed, err
		}
		if err := c.Reject(actor, event.Reason); err != nil {
			return changed, err
		}
		changed = true

	case RemoteStatusPaid:
		if c.Status == domain.ClaimStatusClosed {
			return changed, nil
		}
		if c.Status != domain.ClaimStatusApproved {
			if err := review(); err != nil {
				return changed, err
			}
			if err := c.Approve(actor, s.approvedAmount(c, event)); err != nil {
				return changed, err
			}
			changed = true
		}
		if err := c.Close(actor); err != nil {
			return changed, err
		}
		changed = true

	default:
		return changed, fmt.Errorf("unknown remote status %q", event.Status)
	}

	return changed, nil
}

// approvedAmount prefers the carrier-reported figure and falls back to
// the locally expected payout
func (s *Syncer) approvedAmount(c *domain.Claim, event StatusUpdateEvent) float64 {
	if event.ApprovedAmount != nil {
		return *event.ApprovedAmount
	}
	return c.ExpectedPayout
}

func (s *Syncer) publish(ctx context.Context, update StatusUpdateEvent, c *domain.Claim) {
	if s.bus == nil {
		c.GetDomainEvents()
		return
	}

	for _, de := range c.GetDomainEvents() {
		event := events.NewEvent(de.Type, "insurer-sync", de).
			WithActor(types.ID(update.InsurerCode), "insurer")
		// Best-effort: event delivery must not fail the sync
		_ = s.bus.Publish(ctx, event)
	}
}
