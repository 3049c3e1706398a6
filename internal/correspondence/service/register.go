package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"frontdesk/internal/access"
	"frontdesk/internal/audit"
	"frontdesk/internal/correspondence/models"
	"frontdesk/internal/events"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/platform/sentinel"
	"frontdesk/pkg/requestcontext"
)

// maxProtocolAttempts bounds retries when a fresh protocol collides with a
// pending one in the same condominium.
const maxProtocolAttempts = 3

// Register validates the draft, assigns a protocol and stores a pending
// record. It returns as soon as the record is stored; artifacts arrive later
// through AttachArtifacts.
func (s *Service) Register(ctx context.Context, draft models.Draft) (*models.Correspondence, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "correspondence.Register")
	defer span.End()

	actor, err := access.Require(ctx, access.CapRegister, draft.CondominiumID)
	if err != nil {
		return nil, err
	}
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var record *models.Correspondence
	for attempt := 1; ; attempt++ {
		c, err := models.NewCorrespondence(id.NewCorrespondenceID(), s.protocols.Next(), draft, actor.StaffID, actor.Name, now)
		if err != nil {
			return nil, err
		}
		err = s.store.Create(ctx, c)
		if err == nil {
			record = c
			break
		}
		if errors.Is(err, sentinel.ErrConflict) && attempt < maxProtocolAttempts {
			s.logger.WarnContext(ctx, "protocol collision, regenerating",
				"protocol", c.Protocol,
				"attempt", attempt,
			)
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "could not allocate a unique protocol")
		}
		return nil, wrapStoreErr(err, "register correspondence")
	}

	span.SetAttributes(
		attribute.String("correspondence.id", record.ID.String()),
		attribute.String("correspondence.protocol", record.Protocol),
	)
	s.emitAudit(ctx, audit.Event{
		Action:        audit.ActionRegistered,
		CondominiumID: record.CondominiumID,
		ActorID:       actor.StaffID,
		Subject:       record.ID.String(),
		Protocol:      record.Protocol,
	})
	s.publish(ctx, events.TopicRegistered, record, "")
	if s.metrics != nil {
		s.metrics.IncrementRegistered()
		s.metrics.ObserveRegister(start)
	}
	s.logger.InfoContext(ctx, "correspondence registered",
		"correspondence_id", record.ID.String(),
		"protocol", record.Protocol,
		"request_id", requestcontext.RequestID(ctx),
	)
	return record, nil
}

func (s *Service) emitAudit(ctx context.Context, e audit.Event) {
	if s.auditor == nil {
		return
	}
	e.RequestID = requestcontext.RequestID(ctx)
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.auditor.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(e.Action),
			"subject", e.Subject,
			"error", err,
		)
	}
}

func (s *Service) publish(ctx context.Context, topic events.Topic, c *models.Correspondence, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Topic:         topic,
		SubjectID:     c.ID.String(),
		CondominiumID: c.CondominiumID.String(),
		Protocol:      c.Protocol,
		StaffID:       requestcontext.StaffID(ctx).String(),
		RequestID:     requestcontext.RequestID(ctx),
		Detail:        detail,
		At:            requestcontext.Now(ctx),
	})
}
