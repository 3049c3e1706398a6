package verification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cmodels "frontdesk/internal/correspondence/models"
	"frontdesk/internal/events"
	nmodels "frontdesk/internal/notice/models"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

// Kind tells which collection a deep link resolved against.
type Kind string

const (
	KindCorrespondence Kind = "correspondence"
	KindNotice         Kind = "notice"
)

// StatusNotice is reported for notices, which have no pickup state.
const StatusNotice = "notice"

// View is the public projection behind /ver/{id}. It shows only what the
// printed documents already disclose.
type View struct {
	Kind            Kind           `json:"kind"`
	ID              string         `json:"id"`
	Protocol        string         `json:"protocol"`
	CondominiumName string         `json:"condominium_name"`
	Recipient       ViewRecipient  `json:"recipient"`
	Status          string         `json:"status"`
	PhotoURL        string         `json:"photo_url,omitempty"`
	DocumentURL     string         `json:"document_url,omitempty"`
	Message         string         `json:"message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Pickup          *PickupSummary `json:"pickup,omitempty"`
	ReceiptURL      string         `json:"receipt_url,omitempty"`
}

type ViewRecipient struct {
	Block string `json:"block,omitempty"`
	Unit  string `json:"unit,omitempty"`
	Name  string `json:"name,omitempty"`
}

// PickupSummary is set only once the record is terminal.
type PickupSummary struct {
	CollectorName    string    `json:"collector_name"`
	PickedUpAt       time.Time `json:"picked_up_at"`
	VerificationCode string    `json:"verification_code"`
	ReleasedBy       string    `json:"released_by,omitempty"`
}

type CorrespondenceLookup interface {
	LookupCorrespondence(ctx context.Context, corrID id.CorrespondenceID) (*cmodels.Correspondence, *cmodels.PickupEvidence, error)
}

type NoticeLookup interface {
	LookupNotice(ctx context.Context, noticeID id.NoticeID) (*nmodels.Notice, error)
}

// ViewCache stores resolved views. A miss is (nil, nil).
//
// Invalidate must leave a marker that makes a Set racing with it a no-op:
// a reader that loaded the record before the write committed must not put
// its older view back.
type ViewCache interface {
	Get(ctx context.Context, key string) (*View, error)
	Set(ctx context.Context, key string, v *View) error
	Invalidate(ctx context.Context, key string) error
}

// Resolver resolves deep links, correspondences first and notices second.
type Resolver struct {
	correspondences CorrespondenceLookup
	notices         NoticeLookup
	cache           ViewCache
	coder           *Coder
	logger          *slog.Logger
}

type ResolverOption func(*Resolver)

func WithViewCache(c ViewCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithCoder enables Check.
func WithCoder(c *Coder) ResolverOption {
	return func(r *Resolver) { r.coder = c }
}

func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

func NewResolver(correspondences CorrespondenceLookup, notices NoticeLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		correspondences: correspondences,
		notices:         notices,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the view for raw. An unknown or malformed id is a
// CodeNotFound error.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*View, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	key := parsed.String()

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.WarnContext(ctx, "view cache read failed", "id", key, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	view, err := r.resolve(ctx, parsed)
	if err != nil {
		return nil, err
	}
	if r.cache != nil && view.cacheable() {
		if err := r.cache.Set(ctx, key, view); err != nil {
			r.logger.WarnContext(ctx, "view cache write failed", "id", key, "error", err)
		}
	}
	return view, nil
}

func (r *Resolver) resolve(ctx context.Context, parsed uuid.UUID) (*View, error) {
	c, ev, err := r.correspondences.LookupCorrespondence(ctx, id.CorrespondenceID(parsed))
	switch {
	case err == nil:
		return CorrespondenceView(c, ev), nil
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		return nil, err
	}

	if r.notices == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	n, err := r.notices.LookupNotice(ctx, id.NoticeID(parsed))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, err
	}
	return NoticeView(n), nil
}

// Forget drops a cached view.
func (r *Resolver) Forget(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, key); err != nil {
		r.logger.WarnContext(ctx, "view cache invalidation failed", "id", key, "error", err)
	}
}

// InvalidateOn drops cached views when the bus reports a change. The bus
// may drop events under load, so the services also invalidate right after
// each committed write.
func (r *Resolver) InvalidateOn(ctx context.Context, bus *events.Bus) {
	if r.cache == nil || bus == nil {
		return
	}
	bus.Subscribe(ctx, func(ctx context.Context, e events.Event) {
		r.Forget(ctx, e.SubjectID)
	}, events.TopicPickedUp, events.TopicArtifactsStored)
}

// CorrespondenceView projects a correspondence. Pickup details and the
// receipt link appear only for terminal records.
func CorrespondenceView(c *cmodels.Correspondence, ev *cmodels.PickupEvidence) *View {
	v := &View{
		Kind:            KindCorrespondence,
		ID:              c.ID.String(),
		Protocol:        c.Protocol,
		CondominiumName: c.CondominiumName,
		Recipient: ViewRecipient{
			Block: c.Recipient.BlockName,
			Unit:  c.Recipient.Unit,
			Name:  c.Recipient.ResidentName,
		},
		Status:      string(c.Status),
		PhotoURL:    c.PhotoURL,
		DocumentURL: c.DocumentURL,
		CreatedAt:   c.ArrivedAt,
	}
	if c.Status.IsTerminal() && ev != nil {
		v.Pickup = &PickupSummary{
			CollectorName:    ev.CollectorName,
			PickedUpAt:       ev.PickedUpAt,
			VerificationCode: ev.VerificationCode,
			ReleasedBy:       ev.ReleasedByName,
		}
		v.ReceiptURL = ev.ReceiptURL
	}
	return v
}

// cacheable is false for pending correspondences: their pickup can commit at
// any moment and the view must show it on the next read.
func (v *View) cacheable() bool {
	if v.Kind == KindCorrespondence {
		return v.Pickup != nil
	}
	return true
}

func NoticeView(n *nmodels.Notice) *View {
	return &View{
		Kind:            KindNotice,
		ID:              n.ID.String(),
		Protocol:        n.Protocol,
		CondominiumName: n.CondominiumName,
		Recipient: ViewRecipient{
			Block: n.Recipient.BlockName,
			Unit:  n.Recipient.Unit,
			Name:  n.Recipient.Name,
		},
		Status:      StatusNotice,
		PhotoURL:    n.PhotoURL,
		DocumentURL: n.DocumentURL,
		Message:     n.Message,
		CreatedAt:   n.CreatedAt,
	}
}
