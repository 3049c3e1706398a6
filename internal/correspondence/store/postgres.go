package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"frontdesk/internal/correspondence/models"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresStore persists correspondences and pickup evidence in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables and indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure correspondence schema: %w", err)
	}
	return nil
}

const correspondenceColumns = `
	id, protocol, condominium_id, condominium_name, block_id, block_name, unit,
	resident_id, resident_name, phone, email, note, arrived_at, registered_by,
	registered_by_name, status, photo_url, document_url, evidence_id, picked_up_at,
	version, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Correspondence) error {
	query := `INSERT INTO correspondences (` + correspondenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID), c.Protocol, uuid.UUID(c.CondominiumID), c.CondominiumName,
		c.Recipient.BlockID, c.Recipient.BlockName, c.Recipient.Unit,
		c.Recipient.ResidentID, c.Recipient.ResidentName, c.Recipient.Phone, c.Recipient.Email,
		c.Note, c.ArrivedAt, uuid.UUID(c.RegisteredBy), c.RegisteredByName, string(c.Status),
		c.PhotoURL, c.DocumentURL, nullEvidenceID(c.EvidenceID), c.PickedUpAt,
		c.Version, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert correspondence: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, corrID id.CorrespondenceID) (*models.Correspondence, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+correspondenceColumns+` FROM correspondences WHERE id = $1`, uuid.UUID(corrID))
	c, err := scanCorrespondence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find correspondence: %w", err)
	}
	return c, nil
}

// Search narrows candidates in SQL and ranks them in Go so every backend
// orders results the same way.
func (s *PostgresStore) Search(ctx context.Context, q models.SearchQuery) ([]*models.Correspondence, error) {
	statuses := []string{string(models.StatusPending)}
	if q.Scope == models.ScopeAll {
		statuses = append(statuses, string(models.StatusPickedUp))
	}
	prefix := escapeLike(strings.ToLower(q.Term)) + "%"
	query := `SELECT ` + correspondenceColumns + ` FROM correspondences
		WHERE condominium_id = $1
		  AND status = ANY($2::text[])
		  AND ($3::text = '' OR lower(unit) = lower($3::text))
		  AND ($4::text = '' OR lower(protocol) LIKE $5::text OR lower(unit) LIKE $5::text
		       OR lower(resident_name) LIKE $5::text OR lower(resident_name) LIKE '% ' || $5::text)
		ORDER BY arrived_at DESC
		LIMIT $6`
	rows, err := s.db.QueryContext(ctx, query,
		uuid.UUID(q.CondominiumID), pq.Array(statuses), q.Unit, q.Term, prefix, models.MaxSearchLimit*2)
	if err != nil {
		return nil, fmt.Errorf("search correspondences: %w", err)
	}
	defer rows.Close()

	var hits []*models.Correspondence
	for rows.Next() {
		c, err := scanCorrespondence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correspondence: %w", err)
		}
		if q.Matches(c) {
			hits = append(hits, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate correspondences: %w", err)
	}
	return models.SortByRelevance(hits, q.Term, q.Limit), nil
}

// ConfirmPickup locks the row with FOR UPDATE, runs validate and apply, then
// writes the status flip and the evidence row in one transaction.
func (s *PostgresStore) ConfirmPickup(
	ctx context.Context,
	corrID id.CorrespondenceID,
	validate func(*models.Correspondence) error,
	apply func(*models.Correspondence) *models.PickupEvidence,
) (*models.Correspondence, *models.PickupEvidence, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin pickup tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+correspondenceColumns+` FROM correspondences WHERE id = $1 FOR UPDATE`, uuid.UUID(corrID))
	c, err := scanCorrespondence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, sentinel.ErrNotFound
		}
		return nil, nil, fmt.Errorf("lock correspondence: %w", err)
	}
	if err := validate(c); err != nil {
		return nil, nil, err
	}
	ev := apply(c)
	if ev == nil {
		return nil, nil, sentinel.ErrInvalidState
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE correspondences
		SET status = $1, evidence_id = $2, picked_up_at = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6`,
		string(c.Status), nullEvidenceID(c.EvidenceID), c.PickedUpAt, c.UpdatedAt, uuid.UUID(c.ID), c.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("update correspondence status: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, nil, sentinel.ErrConflict
	}
	c.Version++

	if err := insertEvidence(ctx, tx, ev); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit pickup: %w", err)
	}
	return c, ev, nil
}

const evidenceColumns = `
	id, correspondence_id, condominium_id, collector_name, collector_document,
	collector_phone, released_by, released_by_name, picked_up_at, notes,
	verification_code, terminal, has_collector_signature, has_staff_signature,
	has_photo, collector_signature_url, staff_signature_url, photo_url, receipt_url`

func insertEvidence(ctx context.Context, tx *sql.Tx, ev *models.PickupEvidence) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pickup_evidence (`+evidenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		uuid.UUID(ev.ID), uuid.UUID(ev.CorrespondenceID), uuid.UUID(ev.CondominiumID),
		ev.CollectorName, ev.CollectorDocument, ev.CollectorPhone,
		uuid.UUID(ev.ReleasedBy), ev.ReleasedByName, ev.PickedUpAt, ev.Notes,
		ev.VerificationCode, ev.Terminal, ev.HasCollectorSignature, ev.HasStaffSignature,
		ev.HasPhoto, ev.CollectorSignatureURL, ev.StaffSignatureURL, ev.PhotoURL, ev.ReceiptURL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert pickup evidence: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindEvidence(ctx context.Context, evID id.EvidenceID) (*models.PickupEvidence, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+evidenceColumns+` FROM pickup_evidence WHERE id = $1`, uuid.UUID(evID))
	ev, err := scanEvidence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pickup evidence: %w", err)
	}
	return ev, nil
}

func (s *PostgresStore) CountEvidence(ctx context.Context, corrID id.CorrespondenceID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pickup_evidence WHERE correspondence_id = $1`, uuid.UUID(corrID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pickup evidence: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) PatchArtifacts(ctx context.Context, corrID id.CorrespondenceID, p models.ArtifactPatch) error {
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE correspondences
		SET photo_url = COALESCE(NULLIF($1, ''), photo_url),
		    document_url = COALESCE(NULLIF($2, ''), document_url),
		    updated_at = $3,
		    version = version + 1
		WHERE id = $4`,
		p.PhotoURL, p.DocumentURL, at, uuid.UUID(corrID))
	if err != nil {
		return fmt.Errorf("patch correspondence artifacts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PatchEvidenceArtifacts(ctx context.Context, evID id.EvidenceID, p models.EvidenceArtifacts) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pickup_evidence
		SET collector_signature_url = COALESCE(NULLIF($1, ''), collector_signature_url),
		    staff_signature_url = COALESCE(NULLIF($2, ''), staff_signature_url),
		    photo_url = COALESCE(NULLIF($3, ''), photo_url),
		    receipt_url = COALESCE(NULLIF($4, ''), receipt_url)
		WHERE id = $5`,
		p.CollectorSignatureURL, p.StaffSignatureURL, p.PhotoURL, p.ReceiptURL, uuid.UUID(evID))
	if err != nil {
		return fmt.Errorf("patch evidence artifacts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorrespondence(row rowScanner) (*models.Correspondence, error) {
	var (
		c            models.Correspondence
		corrID       uuid.UUID
		condoID      uuid.UUID
		registeredBy uuid.UUID
		status       string
		evidenceID   uuid.NullUUID
		pickedUpAt   sql.NullTime
	)
	err := row.Scan(
		&corrID, &c.Protocol, &condoID, &c.CondominiumName,
		&c.Recipient.BlockID, &c.Recipient.BlockName, &c.Recipient.Unit,
		&c.Recipient.ResidentID, &c.Recipient.ResidentName, &c.Recipient.Phone, &c.Recipient.Email,
		&c.Note, &c.ArrivedAt, &registeredBy, &c.RegisteredByName, &status,
		&c.PhotoURL, &c.DocumentURL, &evidenceID, &pickedUpAt,
		&c.Version, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ID = id.CorrespondenceID(corrID)
	c.CondominiumID = id.CondominiumID(condoID)
	c.RegisteredBy = id.StaffID(registeredBy)
	c.Status = models.Status(status)
	if evidenceID.Valid {
		ev := id.EvidenceID(evidenceID.UUID)
		c.EvidenceID = &ev
	}
	if pickedUpAt.Valid {
		at := pickedUpAt.Time
		c.PickedUpAt = &at
	}
	return &c, nil
}

func scanEvidence(row rowScanner) (*models.PickupEvidence, error) {
	var (
		ev         models.PickupEvidence
		evID       uuid.UUID
		corrID     uuid.UUID
		condoID    uuid.UUID
		releasedBy uuid.UUID
	)
	err := row.Scan(
		&evID, &corrID, &condoID, &ev.CollectorName, &ev.CollectorDocument,
		&ev.CollectorPhone, &releasedBy, &ev.ReleasedByName, &ev.PickedUpAt, &ev.Notes,
		&ev.VerificationCode, &ev.Terminal, &ev.HasCollectorSignature, &ev.HasStaffSignature,
		&ev.HasPhoto, &ev.CollectorSignatureURL, &ev.StaffSignatureURL, &ev.PhotoURL, &ev.ReceiptURL,
	)
	if err != nil {
		return nil, err
	}
	ev.ID = id.EvidenceID(evID)
	ev.CorrespondenceID = id.CorrespondenceID(corrID)
	ev.CondominiumID = id.CondominiumID(condoID)
	ev.ReleasedBy = id.StaffID(releasedBy)
	return &ev, nil
}

func nullEvidenceID(ev *id.EvidenceID) uuid.NullUUID {
	if ev == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*ev), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
