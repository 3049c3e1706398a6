package notification

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"frontdesk/internal/access"
	"frontdesk/internal/audit"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/platform/sentinel"
	"frontdesk/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TemplateService reads and edits the active template set of a
// condominium, falling back to the built-in defaults.
type TemplateService struct {
	store   TemplateStore
	logger  *slog.Logger
	auditor AuditPublisher
}

type Option func(*TemplateService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *TemplateService) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *TemplateService) { s.auditor = p }
}

func NewTemplateService(store TemplateStore, opts ...Option) *TemplateService {
	s := &TemplateService{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active returns the override or the default. A failing store degrades to
// the default so composing never blocks a registration.
func (s *TemplateService) Active(ctx context.Context, condoID id.CondominiumID, c Category) Template {
	t, err := s.store.Get(ctx, condoID, c)
	if err == nil {
		return *t
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "template lookup failed, using default",
			"condominium_id", condoID.String(),
			"category", string(c),
			"error", err,
		)
	}
	return DefaultTemplate(condoID, c)
}

// Get is Active behind the search capability.
func (s *TemplateService) Get(ctx context.Context, condoID id.CondominiumID, c Category) (Template, error) {
	if _, err := access.Require(ctx, access.CapSearch, condoID); err != nil {
		return Template{}, err
	}
	if !c.IsValid() {
		return Template{}, dErrors.New(dErrors.CodeBadRequest, "unknown template category")
	}
	return s.Active(ctx, condoID, c), nil
}

// Update replaces a condominium's template of one category.
func (s *TemplateService) Update(ctx context.Context, t Template) (Template, error) {
	actor, err := access.Require(ctx, access.CapManageTemplates, t.CondominiumID)
	if err != nil {
		return Template{}, err
	}
	t.Subject = strings.TrimSpace(t.Subject)
	t.Body = strings.TrimSpace(t.Body)
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	t.UpdatedAt = requestcontext.Now(ctx)
	t.UpdatedBy = actor.StaffID
	t.Default = false
	if err := s.store.Put(ctx, t); err != nil {
		return Template{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save template")
	}

	if s.auditor != nil {
		if err := s.auditor.Emit(ctx, audit.Event{
			Timestamp:     t.UpdatedAt,
			Action:        audit.ActionTemplateUpdated,
			CondominiumID: t.CondominiumID,
			ActorID:       actor.StaffID,
			Subject:       string(t.Category),
			RequestID:     requestcontext.RequestID(ctx),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	s.logger.InfoContext(ctx, "template updated",
		"condominium_id", t.CondominiumID.String(),
		"category", string(t.Category),
		"request_id", requestcontext.RequestID(ctx),
	)
	return t, nil
}
