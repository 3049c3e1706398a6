package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"frontdesk/internal/notice/models"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/platform/sentinel"
)

const noticeSchema = `
CREATE TABLE IF NOT EXISTS notices (
    id               UUID PRIMARY KEY,
    protocol         TEXT NOT NULL,
    condominium_id   UUID NOT NULL,
    condominium_name TEXT NOT NULL,
    block_name       TEXT NOT NULL DEFAULT '',
    unit             TEXT NOT NULL DEFAULT '',
    recipient_name   TEXT NOT NULL,
    phone            TEXT NOT NULL DEFAULT '',
    email            TEXT NOT NULL DEFAULT '',
    title            TEXT NOT NULL DEFAULT '',
    message          TEXT NOT NULL,
    photo_url        TEXT NOT NULL DEFAULT '',
    document_url     TEXT NOT NULL DEFAULT '',
    sender_id        UUID NOT NULL,
    sender_name      TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL
);
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, noticeSchema); err != nil {
		return fmt.Errorf("ensure notice schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, n *models.Notice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notices (id, protocol, condominium_id, condominium_name, block_name, unit,
			recipient_name, phone, email, title, message, photo_url, document_url,
			sender_id, sender_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		uuid.UUID(n.ID), n.Protocol, uuid.UUID(n.CondominiumID), n.CondominiumName,
		n.Recipient.BlockName, n.Recipient.Unit, n.Recipient.Name, n.Recipient.Phone, n.Recipient.Email,
		n.Title, n.Message, n.PhotoURL, n.DocumentURL, uuid.UUID(n.SenderID), n.SenderName, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notice: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, noticeID id.NoticeID) (*models.Notice, error) {
	var (
		n        models.Notice
		nID      uuid.UUID
		condoID  uuid.UUID
		senderID uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, protocol, condominium_id, condominium_name, block_name, unit,
			recipient_name, phone, email, title, message, photo_url, document_url,
			sender_id, sender_name, created_at
		FROM notices WHERE id = $1`, uuid.UUID(noticeID)).Scan(
		&nID, &n.Protocol, &condoID, &n.CondominiumName, &n.Recipient.BlockName, &n.Recipient.Unit,
		&n.Recipient.Name, &n.Recipient.Phone, &n.Recipient.Email, &n.Title, &n.Message,
		&n.PhotoURL, &n.DocumentURL, &senderID, &n.SenderName, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find notice: %w", err)
	}
	n.ID = id.NoticeID(nID)
	n.CondominiumID = id.CondominiumID(condoID)
	n.SenderID = id.StaffID(senderID)
	return &n, nil
}

func (s *PostgresStore) PatchArtifacts(ctx context.Context, noticeID id.NoticeID, p models.ArtifactPatch) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notices
		SET photo_url = COALESCE(NULLIF($1, ''), photo_url),
		    document_url = COALESCE(NULLIF($2, ''), document_url)
		WHERE id = $3`, p.PhotoURL, p.DocumentURL, uuid.UUID(noticeID))
	if err != nil {
		return fmt.Errorf("patch notice artifacts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
