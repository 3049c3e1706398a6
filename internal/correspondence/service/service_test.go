package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"frontdesk/internal/access"
	"frontdesk/internal/audit"
	"frontdesk/internal/correspondence/models"
	"frontdesk/internal/correspondence/store"
	"frontdesk/internal/events"
	"frontdesk/internal/verification"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/requestcontext"
)

type sequenceProtocols struct {
	n atomic.Int64
}

func (p *sequenceProtocols) Next() string {
	return fmt.Sprintf("%08d", 10000000+p.n.Add(1))
}

type fixedProtocols string

func (p fixedProtocols) Next() string { return string(p) }

type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, string(e.Topic))
}

type recordingViews struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (v *recordingViews) Invalidate(_ context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = append(v.keys, key)
	return v.err
}

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	audit   *audit.InMemoryStore
	bus     *recordingBus
	coder   *verification.Coder
	service *Service

	condo   id.CondominiumID
	staff   id.StaffID
	now     time.Time
	doorman context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	var err error
	s.store = store.NewInMemory()
	s.audit = audit.NewInMemoryStore()
	s.bus = &recordingBus{}
	s.coder, err = verification.NewCoder("test-secret")
	s.Require().NoError(err)
	s.service = New(s.store, &sequenceProtocols{}, s.coder,
		WithAuditPublisher(audit.NewPublisher(s.audit)),
		WithEventPublisher(s.bus),
		WithPolicySource(StaticPolicy{RequireResidentSignature: true}),
	)

	s.condo = id.CondominiumID(uuid.New())
	s.staff = id.StaffID(uuid.New())
	s.now = time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)
	s.doorman = s.actorCtx(access.RoleDoorman, s.condo)
}

func (s *ServiceSuite) actorCtx(role access.Role, condo id.CondominiumID) context.Context {
	ctx := requestcontext.WithActor(context.Background(), s.staff, condo, string(role), "Joao")
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) draft(unit, resident string) models.Draft {
	return models.Draft{
		CondominiumID:   s.condo,
		CondominiumName: "Residencial Aurora",
		Recipient:       models.Recipient{BlockName: "A", Unit: unit, ResidentName: resident},
	}
}

func (s *ServiceSuite) signedDraft(collector string) models.PickupDraft {
	return models.PickupDraft{CollectorName: collector, CollectorSignature: []byte("png-bytes")}
}

func (s *ServiceSuite) TestRegister() {
	s.Run("returns a pending record immediately findable by search", func() {
		c, err := s.service.Register(s.doorman, s.draft("101", "Maria"))
		s.Require().NoError(err)
		s.Equal(models.StatusPending, c.Status)
		s.NotEmpty(c.Protocol)
		s.Equal(s.staff, c.RegisteredBy)
		s.Equal(s.now, c.ArrivedAt)

		hits, err := s.service.Search(s.doorman, models.SearchQuery{CondominiumID: s.condo, Term: "101"})
		s.Require().NoError(err)
		s.Require().Len(hits, 1)
		s.Equal(c.ID, hits[0].ID)
	})

	s.Run("missing destination fields are validation errors", func() {
		d := s.draft("", "Maria")
		_, err := s.service.Register(s.doorman, d)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("residents cannot register", func() {
		_, err := s.service.Register(s.actorCtx(access.RoleResident, s.condo), s.draft("101", "Maria"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("staff of another condominium cannot register here", func() {
		other := s.actorCtx(access.RoleDoorman, id.CondominiumID(uuid.New()))
		_, err := s.service.Register(other, s.draft("101", "Maria"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestRegisterGivesUpAfterRepeatedProtocolCollisions() {
	svc := New(s.store, fixedProtocols("55555555"), s.coder)
	_, err := svc.Register(s.doorman, s.draft("101", "Maria"))
	s.Require().NoError(err)

	_, err = svc.Register(s.doorman, s.draft("102", "Paulo"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestConfirmPickup() {
	s.Run("complete evidence flips status and creates exactly one evidence row", func() {
		c, err := s.service.Register(s.doorman, s.draft("201", "Maria"))
		s.Require().NoError(err)

		res, err := s.service.ConfirmPickup(s.doorman, c.ID, s.signedDraft(" Maria "))
		s.Require().NoError(err)
		s.Equal(models.StatusPickedUp, res.Correspondence.Status)
		s.Equal("Maria", res.Evidence.CollectorName)
		s.True(res.Evidence.HasCollectorSignature)
		s.Len(res.Evidence.VerificationCode, verification.CodeLength)
		s.True(s.coder.Matches(res.Evidence.VerificationCode, c.Protocol, res.Evidence.ID.String(), s.now.Unix()))

		n, err := s.store.CountEvidence(context.Background(), c.ID)
		s.Require().NoError(err)
		s.Equal(1, n)

		hits, err := s.service.Search(s.doorman, models.SearchQuery{CondominiumID: s.condo, Term: "201", Scope: models.ScopePending})
		s.Require().NoError(err)
		s.Empty(hits)
	})

	s.Run("missing mandatory signature fails identically and leaves status unchanged", func() {
		c, err := s.service.Register(s.doorman, s.draft("202", "Paulo"))
		s.Require().NoError(err)
		incomplete := models.PickupDraft{CollectorName: "Paulo"}

		_, err1 := s.service.ConfirmPickup(s.doorman, c.ID, incomplete)
		_, err2 := s.service.ConfirmPickup(s.doorman, c.ID, incomplete)
		s.Require().Error(err1)
		s.True(dErrors.HasCode(err1, dErrors.CodeValidation))
		s.Equal(err1.Error(), err2.Error())

		got, err := s.store.FindByID(context.Background(), c.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status)
		s.Equal(1, got.Version)
	})

	s.Run("second pickup is a conflict", func() {
		c, err := s.service.Register(s.doorman, s.draft("203", "Ana"))
		s.Require().NoError(err)
		_, err = s.service.ConfirmPickup(s.doorman, c.ID, s.signedDraft("Ana"))
		s.Require().NoError(err)

		_, err = s.service.ConfirmPickup(s.doorman, c.ID, s.signedDraft("Someone"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown record is not found", func() {
		_, err := s.service.ConfirmPickup(s.doorman, id.NewCorrespondenceID(), s.signedDraft("Ana"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("residents cannot release items", func() {
		c, err := s.service.Register(s.doorman, s.draft("204", "Rita"))
		s.Require().NoError(err)
		_, err = s.service.ConfirmPickup(s.actorCtx(access.RoleResident, s.condo), c.ID, s.signedDraft("Rita"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestConcurrentPickupsHaveOneWinner() {
	c, err := s.service.Register(s.doorman, s.draft("301", "Maria"))
	s.Require().NoError(err)

	const terminals = 10
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for range terminals {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.ConfirmPickup(s.doorman, c.ID, s.signedDraft("Maria"))
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(terminals-1), conflicts.Load())
}

func (s *ServiceSuite) TestSearch() {
	exact, err := s.service.Register(s.doorman, s.draft("909", "Bruna"))
	s.Require().NoError(err)
	_, err = s.service.Register(s.doorman, s.draft("101", "Carlos"))
	s.Require().NoError(err)

	s.Run("exact protocol match ranks first", func() {
		hits, err := s.service.Search(s.doorman, models.SearchQuery{CondominiumID: s.condo, Term: exact.Protocol})
		s.Require().NoError(err)
		s.Require().NotEmpty(hits)
		s.Equal(exact.ID, hits[0].ID)
	})

	s.Run("resident name prefix", func() {
		hits, err := s.service.Search(s.doorman, models.SearchQuery{CondominiumID: s.condo, Term: "car"})
		s.Require().NoError(err)
		s.Require().Len(hits, 1)
		s.Equal("Carlos", hits[0].Recipient.ResidentName)
	})

	s.Run("residents are restricted to their unit", func() {
		ctx := requestcontext.WithUnit(s.actorCtx(access.RoleResident, s.condo), "101")
		hits, err := s.service.Search(ctx, models.SearchQuery{CondominiumID: s.condo, Scope: models.ScopeAll})
		s.Require().NoError(err)
		s.Require().Len(hits, 1)
		s.Equal("101", hits[0].Recipient.Unit)
	})

	s.Run("resident without unit is refused", func() {
		_, err := s.service.Search(s.actorCtx(access.RoleResident, s.condo), models.SearchQuery{CondominiumID: s.condo})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestGetHidesOtherUnitsFromResidents() {
	c, err := s.service.Register(s.doorman, s.draft("101", "Maria"))
	s.Require().NoError(err)

	ctx := requestcontext.WithUnit(s.actorCtx(access.RoleResident, s.condo), "102")
	_, err = s.service.Get(ctx, c.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	detail, err := s.service.Get(s.doorman, c.ID)
	s.Require().NoError(err)
	s.Nil(detail.Evidence)
}

func (s *ServiceSuite) TestLookupIncludesEvidenceOnlyWhenTerminal() {
	c, err := s.service.Register(s.doorman, s.draft("401", "Maria"))
	s.Require().NoError(err)

	detail, err := s.service.Lookup(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Nil(detail.Evidence)

	res, err := s.service.ConfirmPickup(s.doorman, c.ID, s.signedDraft("Maria"))
	s.Require().NoError(err)

	detail, err = s.service.Lookup(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Require().NotNil(detail.Evidence)
	s.Equal(res.Evidence.VerificationCode, detail.Evidence.VerificationCode)
}

func (s *ServiceSuite) TestAttachArtifacts() {
	c, err := s.service.Register(s.doorman, s.draft("501", "Maria"))
	s.Require().NoError(err)

	s.Require().NoError(s.service.AttachArtifacts(context.Background(), c.ID, models.ArtifactPatch{DocumentURL: "http://blob/label.pdf"}))
	got, err := s.store.FindByID(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Equal("http://blob/label.pdf", got.DocumentURL)

	err = s.service.AttachArtifacts(context.Background(), id.NewCorrespondenceID(), models.ArtifactPatch{PhotoURL: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.NoError(s.service.AttachArtifacts(context.Background(), id.NewCorrespondenceID(), models.ArtifactPatch{}))
}

func (s *ServiceSuite) TestCommittedWritesInvalidateTheView() {
	views := &recordingViews{}
	svc := New(s.store, &sequenceProtocols{}, s.coder,
		WithPolicySource(StaticPolicy{RequireResidentSignature: true}),
		WithViewInvalidator(views),
	)
	c, err := svc.Register(s.doorman, s.draft("701", "Maria"))
	s.Require().NoError(err)
	s.Empty(views.keys)

	_, err = svc.ConfirmPickup(s.doorman, c.ID, models.PickupDraft{CollectorName: "Maria"})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(views.keys, "rejected pickups write nothing")

	result, err := svc.ConfirmPickup(s.doorman, c.ID, s.signedDraft("Maria"))
	s.Require().NoError(err)
	s.Equal([]string{c.ID.String()}, views.keys)

	s.Require().NoError(svc.AttachEvidenceArtifacts(context.Background(), c.ID, result.Evidence.ID,
		models.EvidenceArtifacts{ReceiptURL: "http://blob/receipt.pdf"}))
	s.Require().NoError(svc.AttachArtifacts(context.Background(), c.ID, models.ArtifactPatch{DocumentURL: "http://blob/label.pdf"}))
	s.Equal([]string{c.ID.String(), c.ID.String(), c.ID.String()}, views.keys)

	views.err = fmt.Errorf("redis down")
	s.NoError(svc.AttachArtifacts(context.Background(), c.ID, models.ArtifactPatch{PhotoURL: "http://blob/photo.jpg"}),
		"a failed invalidation does not undo the committed write")
}

func (s *ServiceSuite) TestAuditTrail() {
	c, err := s.service.Register(s.doorman, s.draft("601", "Maria"))
	s.Require().NoError(err)
	_, err = s.service.ConfirmPickup(s.doorman, c.ID, models.PickupDraft{CollectorName: "Maria"})
	s.Require().Error(err)
	_, err = s.service.ConfirmPickup(s.doorman, c.ID, s.signedDraft("Maria"))
	s.Require().NoError(err)

	events, err := s.audit.ListBySubject(context.Background(), c.ID.String())
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(audit.ActionRegistered, events[0].Action)
	s.Equal(audit.ActionPickupRejected, events[1].Action)
	s.Equal("validation", events[1].Reason)
	s.Equal(audit.ActionPickedUp, events[2].Action)
	s.Equal("req-1", events[2].RequestID)

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.Equal([]string{"correspondence.registered", "correspondence.picked_up"}, s.bus.topics)
}
