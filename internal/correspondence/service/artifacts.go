package service

import (
	"context"

	"frontdesk/internal/correspondence/models"
	"frontdesk/internal/events"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/requestcontext"
)

// AttachArtifacts records blob URLs uploaded after registration. Only the
// background persistence task calls it.
func (s *Service) AttachArtifacts(ctx context.Context, corrID id.CorrespondenceID, p models.ArtifactPatch) error {
	if p.IsEmpty() {
		return nil
	}
	if p.At.IsZero() {
		p.At = requestcontext.Now(ctx)
	}
	if err := s.store.PatchArtifacts(ctx, corrID, p); err != nil {
		return wrapStoreErr(err, "attach artifacts")
	}
	s.invalidateView(ctx, corrID)
	s.publishArtifacts(ctx, corrID.String())
	return nil
}

// AttachEvidenceArtifacts records blob URLs uploaded after pickup.
func (s *Service) AttachEvidenceArtifacts(ctx context.Context, corrID id.CorrespondenceID, evID id.EvidenceID, p models.EvidenceArtifacts) error {
	if p.IsEmpty() {
		return nil
	}
	if err := s.store.PatchEvidenceArtifacts(ctx, evID, p); err != nil {
		return wrapStoreErr(err, "attach evidence artifacts")
	}
	s.invalidateView(ctx, corrID)
	s.publishArtifacts(ctx, corrID.String())
	return nil
}

func (s *Service) publishArtifacts(ctx context.Context, subject string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Topic:     events.TopicArtifactsStored,
		SubjectID: subject,
		RequestID: requestcontext.RequestID(ctx),
		At:        requestcontext.Now(ctx),
	})
}
