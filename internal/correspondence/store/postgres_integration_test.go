//go:build integration

package store

import (
	"context"
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
	"frontdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	condo id.CondominiumID
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "pickup_evidence", "correspondences"))
	s.condo = id.CondominiumID(uuid.New())
	s.now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) newRecord(protocol, unit, resident string) *models.Correspondence {
	c, err := models.NewCorrespondence(id.NewCorrespondenceID(), protocol, models.Draft{
		CondominiumID:   s.condo,
		CondominiumName: "Aurora",
		Recipient:       models.Recipient{BlockName: "A", Unit: unit, ResidentName: resident, Phone: "5511999990000"},
	}, id.StaffID(uuid.New()), "Joao", s.now)
	s.Require().NoError(err)
	return c
}

func (s *PostgresStoreSuite) pickup(c *models.Correspondence) (*models.Correspondence, *models.PickupEvidence, error) {
	return s.store.ConfirmPickup(context.Background(), c.ID,
		func(rec *models.Correspondence) error { return rec.CanPickUp() },
		func(rec *models.Correspondence) *models.PickupEvidence {
			ev := &models.PickupEvidence{
				ID:               id.NewEvidenceID(),
				CorrespondenceID: rec.ID,
				CondominiumID:    rec.CondominiumID,
				CollectorName:    "Maria",
				ReleasedBy:       id.StaffID(uuid.New()),
				PickedUpAt:       s.now.Add(time.Hour),
				VerificationCode: "ABC234",
			}
			rec.ApplyPickup(ev.ID, ev.PickedUpAt)
			return ev
		},
	)
}

func (s *PostgresStoreSuite) TestRoundTripAndSearch() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria Souza")
	s.Require().NoError(s.store.Create(ctx, c))

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(c.Protocol, got.Protocol)
	s.Equal("5511999990000", got.Recipient.Phone)
	s.True(c.ArrivedAt.Equal(got.ArrivedAt))

	hits, err := s.store.Search(ctx, models.SearchQuery{CondominiumID: s.condo, Term: "souza", Scope: models.ScopePending})
	s.Require().NoError(err)
	s.Len(hits, 1)

	_, err = s.store.FindByID(ctx, id.NewCorrespondenceID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestPendingProtocolIsUnique() {
	ctx := context.Background()
	first := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, first))
	s.ErrorIs(s.store.Create(ctx, s.newRecord("11112222", "102", "Paulo")), sentinel.ErrConflict)

	_, _, err := s.pickup(first)
	s.Require().NoError(err)
	s.NoError(s.store.Create(ctx, s.newRecord("11112222", "102", "Paulo")))
}

func (s *PostgresStoreSuite) TestConcurrentPickupsYieldOneWinner() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, c))

	const attempts = 10
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

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPickedUp, got.Status)
	s.Equal(2, got.Version)
}

func (s *PostgresStoreSuite) TestPatchArtifacts() {
	ctx := context.Background()
	c := s.newRecord("11112222", "101", "Maria")
	s.Require().NoError(s.store.Create(ctx, c))
	s.Require().NoError(s.store.PatchArtifacts(ctx, c.ID, models.ArtifactPatch{DocumentURL: "http://blob/label.pdf", At: s.now}))
	s.Require().NoError(s.store.PatchArtifacts(ctx, c.ID, models.ArtifactPatch{PhotoURL: "http://blob/photo.jpg", At: s.now}))

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("http://blob/label.pdf", got.DocumentURL)
	s.Equal("http://blob/photo.jpg", got.PhotoURL)

	_, ev, err := s.pickup(got)
	s.Require().NoError(err)
	s.Require().NoError(s.store.PatchEvidenceArtifacts(ctx, ev.ID, models.EvidenceArtifacts{ReceiptURL: "http://blob/receipt.pdf"}))
	stored, err := s.store.FindEvidence(ctx, ev.ID)
	s.Require().NoError(err)
	s.Equal("http://blob/receipt.pdf", stored.ReceiptURL)
}
