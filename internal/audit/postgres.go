package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "frontdesk/pkg/domain"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id             UUID PRIMARY KEY,
    occurred_at    TIMESTAMPTZ NOT NULL,
    action         TEXT NOT NULL,
    condominium_id UUID,
    actor_id       UUID,
    subject        TEXT NOT NULL DEFAULT '',
    protocol       TEXT NOT NULL DEFAULT '',
    request_id     TEXT NOT NULL DEFAULT '',
    reason         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_subject ON audit_events (subject);
CREATE INDEX IF NOT EXISTS audit_events_condo_time ON audit_events (condominium_id, occurred_at DESC);
`

// PostgresStore appends audit events to the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, occurred_at, action, condominium_id, actor_id, subject, protocol, request_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), e.Timestamp, string(e.Action),
		nullUUID(uuid.UUID(e.CondominiumID)), nullUUID(uuid.UUID(e.ActorID)),
		e.Subject, e.Protocol, e.RequestID, e.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	return s.list(ctx, `WHERE subject = $1 ORDER BY occurred_at`, subject)
}

func (s *PostgresStore) ListRecent(ctx context.Context, condoID id.CondominiumID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, `WHERE condominium_id = $1 ORDER BY occurred_at DESC LIMIT $2`, uuid.UUID(condoID), limit)
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, action, condominium_id, actor_id, subject, protocol, request_id, reason
		FROM audit_events `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			action  string
			condoID uuid.NullUUID
			actorID uuid.NullUUID
		)
		if err := rows.Scan(&e.Timestamp, &action, &condoID, &actorID, &e.Subject, &e.Protocol, &e.RequestID, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.CondominiumID = id.CondominiumID(condoID.UUID)
		e.ActorID = id.StaffID(actorID.UUID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}
