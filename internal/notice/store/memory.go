package store

import (
	"context"
	"sync"

	"frontdesk/internal/notice/models"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	notices map[id.NoticeID]models.Notice
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{notices: make(map[id.NoticeID]models.Notice)}
}

func (s *InMemoryStore) Create(_ context.Context, n *models.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.notices[n.ID]; exists {
		return sentinel.ErrConflict
	}
	s.notices[n.ID] = *n
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, noticeID id.NoticeID) (*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notices[noticeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &n, nil
}

func (s *InMemoryStore) PatchArtifacts(_ context.Context, noticeID id.NoticeID, p models.ArtifactPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notices[noticeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.ApplyArtifacts(p)
	s.notices[noticeID] = n
	return nil
}
