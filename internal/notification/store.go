package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	id "frontdesk/pkg/domain"
	"frontdesk/pkg/platform/sentinel"
)

// TemplateStore persists operator overrides. A missing override is
// sentinel.ErrNotFound.
type TemplateStore interface {
	Get(ctx context.Context, condoID id.CondominiumID, c Category) (*Template, error)
	Put(ctx context.Context, t Template) error
}

type templateKey struct {
	condo    id.CondominiumID
	category Category
}

type InMemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[templateKey]Template
}

func NewInMemoryTemplateStore() *InMemoryTemplateStore {
	return &InMemoryTemplateStore{templates: make(map[templateKey]Template)}
}

func (s *InMemoryTemplateStore) Get(_ context.Context, condoID id.CondominiumID, c Category) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[templateKey{condoID, c}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &t, nil
}

func (s *InMemoryTemplateStore) Put(_ context.Context, t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[templateKey{t.CondominiumID, t.Category}] = t
	return nil
}

const templateSchema = `
CREATE TABLE IF NOT EXISTS message_templates (
    condominium_id UUID NOT NULL,
    category       TEXT NOT NULL,
    subject        TEXT NOT NULL DEFAULT '',
    body           TEXT NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    updated_by     UUID NOT NULL,
    PRIMARY KEY (condominium_id, category)
);
`

type PostgresTemplateStore struct {
	db *sql.DB
}

func NewPostgresTemplateStore(db *sql.DB) *PostgresTemplateStore {
	return &PostgresTemplateStore{db: db}
}

func (s *PostgresTemplateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, templateSchema); err != nil {
		return fmt.Errorf("ensure template schema: %w", err)
	}
	return nil
}

func (s *PostgresTemplateStore) Get(ctx context.Context, condoID id.CondominiumID, c Category) (*Template, error) {
	t := Template{CondominiumID: condoID, Category: c}
	var updatedBy uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT subject, body, updated_at, updated_by
		FROM message_templates
		WHERE condominium_id = $1 AND category = $2`,
		uuid.UUID(condoID), string(c),
	).Scan(&t.Subject, &t.Body, &t.UpdatedAt, &updatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find template: %w", err)
	}
	t.UpdatedBy = id.StaffID(updatedBy)
	return &t, nil
}

func (s *PostgresTemplateStore) Put(ctx context.Context, t Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_templates (condominium_id, category, subject, body, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (condominium_id, category) DO UPDATE
		SET subject = EXCLUDED.subject,
		    body = EXCLUDED.body,
		    updated_at = EXCLUDED.updated_at,
		    updated_by = EXCLUDED.updated_by`,
		uuid.UUID(t.CondominiumID), string(t.Category), t.Subject, t.Body, t.UpdatedAt, uuid.UUID(t.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}
