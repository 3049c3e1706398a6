// Package service creates ad-hoc notices. A notice shares the protocol, QR
// and notification machinery of a correspondence but has no pickup state.
package service

import (
	"context"
	"errors"
	"log/slog"

	"frontdesk/internal/access"
	"frontdesk/internal/audit"
	"frontdesk/internal/events"
	"frontdesk/internal/notice/models"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/platform/sentinel"
	"frontdesk/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, n *models.Notice) error
	FindByID(ctx context.Context, noticeID id.NoticeID) (*models.Notice, error)
	PatchArtifacts(ctx context.Context, noticeID id.NoticeID, p models.ArtifactPatch) error
}

type ProtocolGenerator interface {
	Next() string
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type EventPublisher interface {
	Publish(e events.Event)
}

// ViewInvalidator drops the cached public view of a record.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

type Service struct {
	store     Store
	protocols ProtocolGenerator
	logger    *slog.Logger
	auditor   AuditPublisher
	bus       EventPublisher
	views     ViewInvalidator
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.bus = p }
}

func WithViewInvalidator(v ViewInvalidator) Option {
	return func(s *Service) { s.views = v }
}

func New(store Store, protocols ProtocolGenerator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		protocols: protocols,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new notice. Artifacts are attached later by the
// background persistence task.
func (s *Service) Create(ctx context.Context, draft models.Draft) (*models.Notice, error) {
	actor, err := access.Require(ctx, access.CapCreateNotice, draft.CondominiumID)
	if err != nil {
		return nil, err
	}
	draft.Normalize()
	n, err := models.NewNotice(id.NewNoticeID(), s.protocols.Next(), draft, actor.StaffID, actor.Name, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, wrapStoreErr(err, "create notice")
	}

	if s.auditor != nil {
		if err := s.auditor.Emit(ctx, audit.Event{
			Timestamp:     n.CreatedAt,
			Action:        audit.ActionNoticeCreated,
			CondominiumID: n.CondominiumID,
			ActorID:       actor.StaffID,
			Subject:       n.ID.String(),
			Protocol:      n.Protocol,
			RequestID:     requestcontext.RequestID(ctx),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "notice_id", n.ID.String(), "error", err)
		}
	}
	s.publish(ctx, events.TopicNoticeCreated, n)
	s.logger.InfoContext(ctx, "notice created",
		"notice_id", n.ID.String(),
		"protocol", n.Protocol,
		"request_id", requestcontext.RequestID(ctx),
	)
	return n, nil
}

// Get loads a notice for an authenticated actor of its condominium.
func (s *Service) Get(ctx context.Context, noticeID id.NoticeID) (*models.Notice, error) {
	n, err := s.LookupNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	actor, err := access.Require(ctx, access.CapSearch, n.CondominiumID)
	if err != nil {
		return nil, err
	}
	if n.Recipient.Unit != "" && !actor.SeesUnit(n.Recipient.Unit) {
		return nil, dErrors.New(dErrors.CodeNotFound, "notice not found")
	}
	return n, nil
}

// LookupNotice loads a notice without an actor, for the public view.
func (s *Service) LookupNotice(ctx context.Context, noticeID id.NoticeID) (*models.Notice, error) {
	n, err := s.store.FindByID(ctx, noticeID)
	if err != nil {
		return nil, wrapStoreErr(err, "load notice")
	}
	return n, nil
}

func (s *Service) AttachArtifacts(ctx context.Context, noticeID id.NoticeID, p models.ArtifactPatch) error {
	if p.IsEmpty() {
		return nil
	}
	if err := s.store.PatchArtifacts(ctx, noticeID, p); err != nil {
		return wrapStoreErr(err, "attach notice artifacts")
	}
	if s.views != nil {
		if err := s.views.Invalidate(ctx, noticeID.String()); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate verification view", "notice_id", noticeID.String(), "error", err)
		}
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Topic:     events.TopicArtifactsStored,
			SubjectID: noticeID.String(),
			RequestID: requestcontext.RequestID(ctx),
			At:        requestcontext.Now(ctx),
		})
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic events.Topic, n *models.Notice) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Topic:         topic,
		SubjectID:     n.ID.String(),
		CondominiumID: n.CondominiumID.String(),
		Protocol:      n.Protocol,
		StaffID:       n.SenderID.String(),
		RequestID:     requestcontext.RequestID(ctx),
		At:            n.CreatedAt,
	})
}

func wrapStoreErr(err error, action string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "notice not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "notice already exists")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable while trying to "+action)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
}
