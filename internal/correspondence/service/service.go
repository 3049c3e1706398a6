// Package service is the correspondence lifecycle coordinator. It is the only
// component that moves a correspondence from pending to picked_up.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"frontdesk/internal/audit"
	corrmetrics "frontdesk/internal/correspondence/metrics"
	"frontdesk/internal/correspondence/models"
	"frontdesk/internal/events"
	id "frontdesk/pkg/domain"
)

// Store is the persistence boundary. ConfirmPickup must run validate and
// apply atomically with the write of both the record and the evidence.
type Store interface {
	Create(ctx context.Context, c *models.Correspondence) error
	FindByID(ctx context.Context, corrID id.CorrespondenceID) (*models.Correspondence, error)
	Search(ctx context.Context, q models.SearchQuery) ([]*models.Correspondence, error)
	ConfirmPickup(
		ctx context.Context,
		corrID id.CorrespondenceID,
		validate func(*models.Correspondence) error,
		apply func(*models.Correspondence) *models.PickupEvidence,
	) (*models.Correspondence, *models.PickupEvidence, error)
	FindEvidence(ctx context.Context, evID id.EvidenceID) (*models.PickupEvidence, error)
	PatchArtifacts(ctx context.Context, corrID id.CorrespondenceID, p models.ArtifactPatch) error
	PatchEvidenceArtifacts(ctx context.Context, evID id.EvidenceID, p models.EvidenceArtifacts) error
}

// ProtocolGenerator issues display protocols.
type ProtocolGenerator interface {
	Next() string
}

// CodeIssuer derives the verification code printed on a pickup receipt.
type CodeIssuer interface {
	Code(protocol, evidenceID string, pickedUpUnix int64) (string, error)
}

// PolicySource resolves the pickup policy of a condominium.
type PolicySource interface {
	PickupPolicy(ctx context.Context, condoID id.CondominiumID) (models.PickupPolicy, error)
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

// Service coordinates registration, lookup and pickup.
type Service struct {
	store     Store
	protocols ProtocolGenerator
	codes     CodeIssuer
	policies  PolicySource

	logger  *slog.Logger
	auditor AuditPublisher
	bus     EventPublisher
	views   ViewInvalidator
	metrics *corrmetrics.Metrics
	tracer  trace.Tracer
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

// WithViewInvalidator drops the public view right after every committed
// pickup or artifact write.
func WithViewInvalidator(v ViewInvalidator) Option {
	return func(s *Service) { s.views = v }
}

func WithMetrics(m *corrmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPolicySource overrides the default lenient policy.
func WithPolicySource(p PolicySource) Option {
	return func(s *Service) { s.policies = p }
}

func New(store Store, protocols ProtocolGenerator, codes CodeIssuer, opts ...Option) *Service {
	s := &Service{
		store:     store,
		protocols: protocols,
		codes:     codes,
		policies:  StaticPolicy{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("frontdesk/correspondence"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) invalidateView(ctx context.Context, corrID id.CorrespondenceID) {
	if s.views == nil {
		return
	}
	if err := s.views.Invalidate(ctx, corrID.String()); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate verification view",
			"correspondence_id", corrID.String(),
			"error", err,
		)
	}
}

// StaticPolicy applies the same policy to every condominium.
type StaticPolicy models.PickupPolicy

func (p StaticPolicy) PickupPolicy(context.Context, id.CondominiumID) (models.PickupPolicy, error) {
	return models.PickupPolicy(p), nil
}

// PolicyOverrides resolves per-condominium policies, falling back to Default.
type PolicyOverrides struct {
	Default   models.PickupPolicy
	Overrides map[id.CondominiumID]models.PickupPolicy
}

func (p PolicyOverrides) PickupPolicy(_ context.Context, condoID id.CondominiumID) (models.PickupPolicy, error) {
	if policy, ok := p.Overrides[condoID]; ok {
		return policy, nil
	}
	return p.Default, nil
}
