// Package desk runs the operator-facing flows end to end: store the record,
// render its document from in-memory data, hand persistence of artifacts to
// the background runner and compose the notification. The operator gets the
// document and message as soon as the record is stored.
package desk

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"frontdesk/internal/artifacts"
	cmodels "frontdesk/internal/correspondence/models"
	csvc "frontdesk/internal/correspondence/service"
	"frontdesk/internal/imaging"
	nmodels "frontdesk/internal/notice/models"
	"frontdesk/internal/notification"
	"frontdesk/internal/receipt"
	id "frontdesk/pkg/domain"
)

type CorrespondenceService interface {
	Register(ctx context.Context, draft cmodels.Draft) (*cmodels.Correspondence, error)
	ConfirmPickup(ctx context.Context, corrID id.CorrespondenceID, draft cmodels.PickupDraft) (*csvc.PickupResult, error)
	Get(ctx context.Context, corrID id.CorrespondenceID) (*csvc.Detail, error)
}

type NoticeService interface {
	Create(ctx context.Context, draft nmodels.Draft) (*nmodels.Notice, error)
}

type ImageNormalizer interface {
	NormalizeLocal(ctx context.Context, data []byte, purpose imaging.Purpose) []byte
	FetchNormalized(ctx context.Context, url string, purpose imaging.Purpose) []byte
}

type DocumentRenderer interface {
	Render(ctx context.Context, doc receipt.Document) ([]byte, error)
}

type BackgroundRunner interface {
	Start(ctx context.Context, job artifacts.Job) *artifacts.Task
	Await(ctx context.Context, key string) error
	Pending(key string) bool
}

type TemplateSource interface {
	Active(ctx context.Context, condoID id.CondominiumID, c notification.Category) notification.Template
}

type Dispatcher interface {
	Dispatch(ctx context.Context, e notification.Envelope) error
}

// Desk wires the flows together.
type Desk struct {
	correspondences CorrespondenceService
	notices         NoticeService
	images          ImageNormalizer
	renderer        DocumentRenderer
	runner          BackgroundRunner
	templates       TemplateSource
	composer        *notification.Composer

	dispatcher Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Deps are the collaborators every flow needs.
type Deps struct {
	Correspondences CorrespondenceService
	Notices         NoticeService
	Images          ImageNormalizer
	Renderer        DocumentRenderer
	Runner          BackgroundRunner
	Templates       TemplateSource
	Composer        *notification.Composer
}

type Option func(*Desk)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Desk) { d.logger = logger }
}

// WithDispatcher sends composed messages to the outbox as well as
// returning them.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(d *Desk) { d.dispatcher = dispatcher }
}

func New(deps Deps, opts ...Option) *Desk {
	d := &Desk{
		correspondences: deps.Correspondences,
		notices:         deps.Notices,
		images:          deps.Images,
		renderer:        deps.Renderer,
		runner:          deps.Runner,
		templates:       deps.Templates,
		composer:        deps.Composer,
		logger:          slog.Default(),
		tracer:          otel.Tracer("frontdesk/desk"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}
