package store

import (
	"context"
	"strings"
	"sync"

	"frontdesk/internal/correspondence/models"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps correspondences and pickup evidence in maps. A single
// mutex makes ConfirmPickup atomic across both.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  map[id.CorrespondenceID]*models.Correspondence
	evidence map[id.EvidenceID]*models.PickupEvidence
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[id.CorrespondenceID]*models.Correspondence),
		evidence: make(map[id.EvidenceID]*models.PickupEvidence),
	}
}

// Create stores c. A pending record with the same protocol in the same
// condominium is a conflict.
func (s *InMemoryStore) Create(_ context.Context, c *models.Correspondence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[c.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.records {
		if existing.CondominiumID == c.CondominiumID &&
			existing.Status == models.StatusPending &&
			strings.EqualFold(existing.Protocol, c.Protocol) {
			return sentinel.ErrConflict
		}
	}
	s.records[c.ID] = c.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, corrID id.CorrespondenceID) (*models.Correspondence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.records[corrID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) Search(_ context.Context, q models.SearchQuery) ([]*models.Correspondence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []*models.Correspondence
	for _, c := range s.records {
		if q.Matches(c) {
			hits = append(hits, c.Clone())
		}
	}
	return models.SortByRelevance(hits, q.Term, q.Limit), nil
}

// ConfirmPickup runs validate and apply under the store lock. apply mutates
// the record and returns the evidence to insert with it.
func (s *InMemoryStore) ConfirmPickup(
	_ context.Context,
	corrID id.CorrespondenceID,
	validate func(*models.Correspondence) error,
	apply func(*models.Correspondence) *models.PickupEvidence,
) (*models.Correspondence, *models.PickupEvidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[corrID]
	if !ok {
		return nil, nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, nil, err
	}
	ev := apply(working)
	if ev == nil {
		return nil, nil, sentinel.ErrInvalidState
	}
	if _, exists := s.evidence[ev.ID]; exists {
		return nil, nil, sentinel.ErrConflict
	}
	working.Version = current.Version + 1

	stored := *ev
	s.records[corrID] = working
	s.evidence[ev.ID] = &stored
	return working.Clone(), ev, nil
}

func (s *InMemoryStore) FindEvidence(_ context.Context, evID id.EvidenceID) (*models.PickupEvidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.evidence[evID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *ev
	return &out, nil
}

// CountEvidence returns the number of evidence rows for a correspondence.
func (s *InMemoryStore) CountEvidence(_ context.Context, corrID id.CorrespondenceID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ev := range s.evidence {
		if ev.CorrespondenceID == corrID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) PatchArtifacts(_ context.Context, corrID id.CorrespondenceID, p models.ArtifactPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.records[corrID]
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := c.Clone()
	updated.ApplyArtifacts(p)
	updated.Version++
	s.records[corrID] = updated
	return nil
}

func (s *InMemoryStore) PatchEvidenceArtifacts(_ context.Context, evID id.EvidenceID, p models.EvidenceArtifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evidence[evID]
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := *ev
	updated.ApplyArtifacts(p)
	s.evidence[evID] = &updated
	return nil
}
