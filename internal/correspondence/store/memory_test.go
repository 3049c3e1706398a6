package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"frontdesk/internal/correspondence/models"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	condo id.CondominiumID
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.condo = id.CondominiumID(uuid.New())
	s.now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) newRecord(protocol, unit, resident string) *models.Correspondence {
	c, err := models.NewCorrespondence(id.NewCorrespondenceID(), protocol, models.Draft{
		CondominiumID:   s.condo,
		CondominiumName: "Aurora",
		Recipient:       models.Recipient{BlockName: "A", Unit: unit, ResidentName: resident},
	}, id.StaffID(uuid.New()), "Joao", s.now)
	s.Require().NoError(err)
	return c
}

func (s *InMemoryStoreSuite) pickup(c *models.Correspondence) (*models.Correspondence, *models.PickupEvidence, error) {
	return s.store.ConfirmPickup(context.Background(), c.ID,
		func(rec *models.Correspondence) error { return rec.CanPickUp() },
		func(rec *models.Correspondence) *models.PickupEvidence {
			ev := &models.PickupEvidence{
				ID:               id.NewEvidenceID(),
				CorrespondenceID: rec.ID,
				CondominiumID:    rec.CondominiumID,
				CollectorName:    "Maria",
				PickedUpAt:       s.now.Add(time.Hour),
				VerificationCode: "ABC234",
			}
			rec.ApplyPickup(ev.ID, ev.PickedUpAt)
			return ev
		},
	)
}

func (s *InMemoryStoreSuite) TestCreateRejectsDuplicatePendingProtocol() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newRecord("11112222", "101", "Maria")))

	err := s.store.Create(ctx, s.newRecord("11112222", "102", "Paulo"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestProtocolReusableAfterPickup() {
	ctx := context.Background()
	first := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, first))
	_, _, err := s.pickup(first)
	s.Require().NoError(err)

	s.NoError(s.store.Create(ctx, s.newRecord("11112222", "102", "Paulo")))
}

func (s *InMemoryStoreSuite) TestFindByIDReturnsCopies() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, c))

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	got.Status = models.StatusPickedUp

	again, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, again.Status)

	_, err = s.store.FindByID(ctx, id.NewCorrespondenceID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestConfirmPickupIsAtomic() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, c))

	updated, ev, err := s.pickup(c)
	s.Require().NoError(err)
	s.Equal(models.StatusPickedUp, updated.Status)
	s.Equal(2, updated.Version)
	s.Require().NotNil(updated.EvidenceID)
	s.Equal(ev.ID, *updated.EvidenceID)

	stored, err := s.store.FindEvidence(ctx, ev.ID)
	s.Require().NoError(err)
	s.Equal("Maria", stored.CollectorName)

	hits, err := s.store.Search(ctx, models.SearchQuery{CondominiumID: s.condo, Term: "101", Scope: models.ScopePending})
	s.Require().NoError(err)
	s.Empty(hits)
}

func (s *InMemoryStoreSuite) TestConfirmPickupValidationLeavesRecordUntouched() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, c))

	applied := false
	_, _, err := s.store.ConfirmPickup(ctx, c.ID,
		func(*models.Correspondence) error { return dErrors.New(dErrors.CodeValidation, "signature required") },
		func(*models.Correspondence) *models.PickupEvidence { applied = true; return nil },
	)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.False(applied)

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	n, err := s.store.CountEvidence(ctx, c.ID)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *InMemoryStoreSuite) TestConcurrentPickupsYieldOneWinner() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, c))

	const attempts = 20
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.pickup(c)
			switch {
			case err == nil:
				ok.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(attempts-1), conflicts.Load())
	n, err := s.store.CountEvidence(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *InMemoryStoreSuite) TestPatchArtifacts() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, c))

	s.Require().NoError(s.store.PatchArtifacts(ctx, c.ID, models.ArtifactPatch{DocumentURL: "http://blob/label.pdf"}))
	s.Require().NoError(s.store.PatchArtifacts(ctx, c.ID, models.ArtifactPatch{PhotoURL: "http://blob/photo.jpg"}))

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("http://blob/label.pdf", got.DocumentURL)
	s.Equal("http://blob/photo.jpg", got.PhotoURL)

	err = s.store.PatchArtifacts(ctx, id.NewCorrespondenceID(), models.ArtifactPatch{PhotoURL: "x"})
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *InMemoryStoreSuite) TestPatchEvidenceArtifacts() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, c))
	_, ev, err := s.pickup(c)
	s.Require().NoError(err)

	s.Require().NoError(s.store.PatchEvidenceArtifacts(ctx, ev.ID, models.EvidenceArtifacts{ReceiptURL: "http://blob/receipt.pdf"}))
	got, err := s.store.FindEvidence(ctx, ev.ID)
	s.Require().NoError(err)
	s.Equal("http://blob/receipt.pdf", got.ReceiptURL)
	s.Equal("ABC234", got.VerificationCode)
}
