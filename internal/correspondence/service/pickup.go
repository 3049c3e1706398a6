package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"frontdesk/internal/access"
	"frontdesk/internal/audit"
	"frontdesk/internal/correspondence/models"
	"frontdesk/internal/events"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/requestcontext"
)

// PickupResult is the committed outcome of ConfirmPickup.
type PickupResult struct {
	Correspondence *models.Correspondence
	Evidence       *models.PickupEvidence
}

// ConfirmPickup checks the condominium's policy against the draft and then,
// atomically, flips the record to picked_up and creates its evidence.
//
// Validation failures leave the record untouched and fail identically on
// retry. A record that is already picked up yields CodeConflict.
func (s *Service) ConfirmPickup(ctx context.Context, corrID id.CorrespondenceID, draft models.PickupDraft) (*PickupResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "correspondence.ConfirmPickup")
	defer span.End()
	span.SetAttributes(attribute.String("correspondence.id", corrID.String()))

	current, err := s.store.FindByID(ctx, corrID)
	if err != nil {
		return nil, wrapStoreErr(err, "load correspondence")
	}
	actor, err := access.Require(ctx, access.CapPickup, current.CondominiumID)
	if err != nil {
		s.rejectPickup(ctx, current, "forbidden", err)
		return nil, err
	}
	if err := current.CanPickUp(); err != nil {
		s.rejectPickup(ctx, current, "conflict", err)
		return nil, err
	}

	policy, err := s.PickupPolicy(ctx, current.CondominiumID)
	if err != nil {
		return nil, err
	}
	draft.Normalize()
	if err := policy.Check(draft); err != nil {
		s.rejectPickup(ctx, current, "validation", err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	evidenceID := id.NewEvidenceID()
	code, err := s.codes.Code(current.Protocol, evidenceID.String(), now.Unix())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive verification code")
	}

	updated, evidence, err := s.store.ConfirmPickup(ctx, corrID,
		func(c *models.Correspondence) error {
			return c.CanPickUp()
		},
		func(c *models.Correspondence) *models.PickupEvidence {
			c.ApplyPickup(evidenceID, now)
			return &models.PickupEvidence{
				ID:                    evidenceID,
				CorrespondenceID:      c.ID,
				CondominiumID:         c.CondominiumID,
				CollectorName:         draft.CollectorName,
				CollectorDocument:     draft.CollectorDocument,
				CollectorPhone:        draft.CollectorPhone,
				ReleasedBy:            actor.StaffID,
				ReleasedByName:        actor.Name,
				PickedUpAt:            now,
				Notes:                 draft.Notes,
				VerificationCode:      code,
				Terminal:              draft.Terminal,
				HasCollectorSignature: len(draft.CollectorSignature) > 0,
				HasStaffSignature:     len(draft.StaffSignature) > 0,
				HasPhoto:              len(draft.Photo) > 0,
			}
		},
	)
	if err != nil {
		wrapped := wrapStoreErr(err, "confirm pickup")
		if dErrors.HasCode(wrapped, dErrors.CodeConflict) {
			s.rejectPickup(ctx, current, "conflict", wrapped)
		}
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, "pickup failed")
		return nil, wrapped
	}

	s.invalidateView(ctx, updated.ID)
	s.emitAudit(ctx, audit.Event{
		Action:        audit.ActionPickedUp,
		CondominiumID: updated.CondominiumID,
		ActorID:       actor.StaffID,
		Subject:       updated.ID.String(),
		Protocol:      updated.Protocol,
	})
	s.publish(ctx, events.TopicPickedUp, updated, evidence.ID.String())
	if s.metrics != nil {
		s.metrics.IncrementPickedUp()
		s.metrics.ObservePickup(start)
	}
	s.logger.InfoContext(ctx, "correspondence picked up",
		"correspondence_id", updated.ID.String(),
		"evidence_id", evidence.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &PickupResult{Correspondence: updated, Evidence: evidence}, nil
}

func (s *Service) rejectPickup(ctx context.Context, c *models.Correspondence, reason string, cause error) {
	if s.metrics != nil {
		s.metrics.IncrementPickupRejected(reason)
	}
	s.emitAudit(ctx, audit.Event{
		Action:        audit.ActionPickupRejected,
		CondominiumID: c.CondominiumID,
		ActorID:       requestcontext.StaffID(ctx),
		Subject:       c.ID.String(),
		Protocol:      c.Protocol,
		Reason:        reason,
	})
	s.logger.InfoContext(ctx, "pickup rejected",
		"correspondence_id", c.ID.String(),
		"reason", reason,
		"error", cause,
	)
}
