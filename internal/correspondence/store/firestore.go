package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/uuid"

	"frontdesk/internal/correspondence/models"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/platform/sentinel"
)

const (
	correspondenceCollection = "correspondences"
	evidenceCollection       = "pickupEvidence"
	// pendingProtocolCollection holds one lock document per pending protocol
	// so uniqueness is enforced inside the registration transaction.
	pendingProtocolCollection = "pendingProtocols"
	// legacyIDCollection maps the derived id of an auto-id document back to
	// the document, keyed by the derived id.
	legacyIDCollection = "legacyCorrespondenceIds"
)

// legacyNamespace seeds the name-based UUIDs given to documents that older
// clients created with Firestore auto-ids.
var legacyNamespace = uuid.MustParse("0b6a3f1e-5c2d-4e7a-9f10-8d4c2b7e6a51")

// FirestoreStore persists correspondences in Cloud Firestore. Documents
// written by older clients are normalized once, in fromDocument.
type FirestoreStore struct {
	client *firestore.Client
	logger *slog.Logger

	aliased sync.Map
}

type FirestoreOption func(*FirestoreStore)

func WithFirestoreLogger(logger *slog.Logger) FirestoreOption {
	return func(s *FirestoreStore) { s.logger = logger }
}

func NewFirestore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// recordID returns the id a document is exposed under. Non-UUID document ids
// map to a stable name-based UUID.
func recordID(docID string) (corrID id.CorrespondenceID, legacy bool) {
	if u, err := uuid.Parse(docID); err == nil && u.String() == strings.ToLower(docID) {
		return id.CorrespondenceID(u), false
	}
	return id.CorrespondenceID(uuid.NewSHA1(legacyNamespace, []byte(docID))), true
}

// docRef resolves corrID to its document, following the alias of a legacy
// document when one was recorded.
func (s *FirestoreStore) docRef(ctx context.Context, corrID id.CorrespondenceID) (*firestore.DocumentRef, error) {
	primary := s.client.Collection(correspondenceCollection).Doc(corrID.String())
	alias, err := s.client.Collection(legacyIDCollection).Doc(corrID.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return primary, nil
		}
		return nil, fmt.Errorf("resolve correspondence id: %w", err)
	}
	if docID, _ := alias.Data()["docId"].(string); docID != "" {
		return s.client.Collection(correspondenceCollection).Doc(docID), nil
	}
	return primary, nil
}

// decode maps a snapshot and records the alias of a legacy document so later
// lookups by the derived id reach it.
func (s *FirestoreStore) decode(ctx context.Context, snap *firestore.DocumentSnapshot) *models.Correspondence {
	c := fromDocument(snap.Ref.ID, snap.Data())
	if _, legacy := recordID(snap.Ref.ID); !legacy {
		return c
	}
	if _, done := s.aliased.Load(snap.Ref.ID); done {
		return c
	}
	_, err := s.client.Collection(legacyIDCollection).Doc(c.ID.String()).Set(ctx, map[string]any{"docId": snap.Ref.ID})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record legacy correspondence id",
			"doc_id", snap.Ref.ID,
			"correspondence_id", c.ID.String(),
			"error", err,
		)
		return c
	}
	s.aliased.Store(snap.Ref.ID, struct{}{})
	return c
}

func (s *FirestoreStore) Create(ctx context.Context, c *models.Correspondence) error {
	docRef := s.client.Collection(correspondenceCollection).Doc(c.ID.String())
	lockRef := s.client.Collection(pendingProtocolCollection).Doc(protocolLockID(c.CondominiumID, c.Protocol))
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(lockRef, map[string]any{"correspondenceId": c.ID.String()}); err != nil {
			return err
		}
		return tx.Create(docRef, toDocument(c))
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create correspondence: %w", err)
	}
	return nil
}

func (s *FirestoreStore) FindByID(ctx context.Context, corrID id.CorrespondenceID) (*models.Correspondence, error) {
	ref, err := s.docRef(ctx, corrID)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find correspondence: %w", err)
	}
	return fromDocument(snap.Ref.ID, snap.Data()), nil
}

// Search loads the condominium's candidates and filters prefixes in Go;
// Firestore cannot OR prefix ranges across fields. Documents of older
// clients carry createdAt instead of arrivedAt and their own status words,
// so they come from a second query and scope is applied after decoding.
func (s *FirestoreStore) Search(ctx context.Context, q models.SearchQuery) ([]*models.Correspondence, error) {
	base := s.client.Collection(correspondenceCollection).
		Where("condominiumId", "==", q.CondominiumID.String())
	current := base
	if q.Scope != models.ScopeAll {
		current = current.Where("status", "==", string(models.StatusPending))
	}

	seen := make(map[string]bool)
	var hits []*models.Correspondence
	for _, query := range []firestore.Query{
		current.OrderBy("arrivedAt", firestore.Desc).Limit(models.MaxSearchLimit * 2),
		base.OrderBy("createdAt", firestore.Desc).Limit(models.MaxSearchLimit * 2),
	} {
		if err := s.collect(ctx, query, q, seen, &hits); err != nil {
			return nil, err
		}
	}
	return models.SortByRelevance(hits, q.Term, q.Limit), nil
}

func (s *FirestoreStore) collect(
	ctx context.Context,
	query firestore.Query,
	q models.SearchQuery,
	seen map[string]bool,
	hits *[]*models.Correspondence,
) error {
	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("search correspondences: %w", err)
		}
		if seen[snap.Ref.ID] {
			continue
		}
		seen[snap.Ref.ID] = true
		if c := s.decode(ctx, snap); q.Matches(c) {
			*hits = append(*hits, c)
		}
	}
}

// ConfirmPickup reads, validates and writes inside one Firestore transaction.
// The pending-protocol lock is released with the status flip.
func (s *FirestoreStore) ConfirmPickup(
	ctx context.Context,
	corrID id.CorrespondenceID,
	validate func(*models.Correspondence) error,
	apply func(*models.Correspondence) *models.PickupEvidence,
) (*models.Correspondence, *models.PickupEvidence, error) {
	docRef, err := s.docRef(ctx, corrID)
	if err != nil {
		return nil, nil, err
	}

	var (
		result   *models.Correspondence
		evidence *models.PickupEvidence
	)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return sentinel.ErrNotFound
			}
			return err
		}
		c := fromDocument(snap.Ref.ID, snap.Data())
		if err := validate(c); err != nil {
			return err
		}
		ev := apply(c)
		if ev == nil {
			return sentinel.ErrInvalidState
		}
		c.Version++

		evRef := s.client.Collection(evidenceCollection).Doc(ev.ID.String())
		if err := tx.Create(evRef, toEvidenceDocument(ev)); err != nil {
			return err
		}
		if err := tx.Update(docRef, []firestore.Update{
			{Path: "status", Value: string(c.Status)},
			{Path: "evidenceId", Value: ev.ID.String()},
			{Path: "pickedUpAt", Value: *c.PickedUpAt},
			{Path: "updatedAt", Value: c.UpdatedAt},
			{Path: "version", Value: c.Version},
		}); err != nil {
			return err
		}
		lockRef := s.client.Collection(pendingProtocolCollection).Doc(protocolLockID(c.CondominiumID, c.Protocol))
		if err := tx.Delete(lockRef); err != nil {
			return err
		}
		result, evidence = c, ev
		return nil
	}, firestore.MaxAttempts(3))
	if err != nil {
		if !isGRPCError(err) {
			// Callback errors are already sentinel or domain errors.
			return nil, nil, err
		}
		switch status.Code(err) {
		case codes.AlreadyExists, codes.Aborted:
			return nil, nil, sentinel.ErrConflict
		}
		return nil, nil, fmt.Errorf("confirm pickup: %w", err)
	}
	return result, evidence, nil
}

func (s *FirestoreStore) FindEvidence(ctx context.Context, evID id.EvidenceID) (*models.PickupEvidence, error) {
	snap, err := s.client.Collection(evidenceCollection).Doc(evID.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pickup evidence: %w", err)
	}
	var doc evidenceDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode pickup evidence: %w", err)
	}
	return doc.toModel(snap.Ref.ID)
}

func (s *FirestoreStore) CountEvidence(ctx context.Context, corrID id.CorrespondenceID) (int, error) {
	snaps, err := s.client.Collection(evidenceCollection).
		Where("correspondenceId", "==", corrID.String()).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("count pickup evidence: %w", err)
	}
	return len(snaps), nil
}

func (s *FirestoreStore) PatchArtifacts(ctx context.Context, corrID id.CorrespondenceID, p models.ArtifactPatch) error {
	var updates []firestore.Update
	if p.PhotoURL != "" {
		updates = append(updates, firestore.Update{Path: "photoUrl", Value: p.PhotoURL})
	}
	if p.DocumentURL != "" {
		updates = append(updates, firestore.Update{Path: "documentUrl", Value: p.DocumentURL})
	}
	if len(updates) == 0 {
		return nil
	}
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	updates = append(updates,
		firestore.Update{Path: "updatedAt", Value: at},
		firestore.Update{Path: "version", Value: firestore.Increment(1)},
	)
	ref, err := s.docRef(ctx, corrID)
	if err != nil {
		return err
	}
	return s.update(ctx, ref, updates)
}

func (s *FirestoreStore) PatchEvidenceArtifacts(ctx context.Context, evID id.EvidenceID, p models.EvidenceArtifacts) error {
	var updates []firestore.Update
	for path, value := range map[string]string{
		"collectorSignatureUrl": p.CollectorSignatureURL,
		"staffSignatureUrl":     p.StaffSignatureURL,
		"photoUrl":              p.PhotoURL,
		"receiptUrl":            p.ReceiptURL,
	} {
		if value != "" {
			updates = append(updates, firestore.Update{Path: path, Value: value})
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return s.update(ctx, s.client.Collection(evidenceCollection).Doc(evID.String()), updates)
}

func (s *FirestoreStore) update(ctx context.Context, ref *firestore.DocumentRef, updates []firestore.Update) error {
	if _, err := ref.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("update %s: %w", ref.Parent.ID, err)
	}
	return nil
}

func protocolLockID(condoID id.CondominiumID, protocol string) string {
	return condoID.String() + "_" + strings.ToLower(protocol)
}

func isGRPCError(err error) bool {
	_, ok := status.FromError(err)
	return ok
}

func toDocument(c *models.Correspondence) map[string]any {
	doc := map[string]any{
		"protocol":         c.Protocol,
		"condominiumId":    c.CondominiumID.String(),
		"condominiumName":  c.CondominiumName,
		"blockId":          c.Recipient.BlockID,
		"blockName":        c.Recipient.BlockName,
		"unit":             c.Recipient.Unit,
		"residentId":       c.Recipient.ResidentID,
		"residentName":     c.Recipient.ResidentName,
		"phone":            c.Recipient.Phone,
		"email":            c.Recipient.Email,
		"note":             c.Note,
		"arrivedAt":        c.ArrivedAt,
		"registeredBy":     c.RegisteredBy.String(),
		"registeredByName": c.RegisteredByName,
		"status":           string(c.Status),
		"photoUrl":         c.PhotoURL,
		"documentUrl":      c.DocumentURL,
		"version":          c.Version,
		"updatedAt":        c.UpdatedAt,
	}
	if c.EvidenceID != nil {
		doc["evidenceId"] = c.EvidenceID.String()
	}
	if c.PickedUpAt != nil {
		doc["pickedUpAt"] = *c.PickedUpAt
	}
	return doc
}

// fromDocument maps a raw document into the model, applying the field
// fallbacks used by older clients.
func fromDocument(docID string, data map[string]any) *models.Correspondence {
	corrID, _ := recordID(docID)
	c := &models.Correspondence{
		ID:               corrID,
		Protocol:         firstString(data, "protocol", "protocolo"),
		CondominiumName:  firstString(data, "condominiumName", "condominio"),
		Note:             firstString(data, "note", "observacao", "notes"),
		RegisteredByName: firstString(data, "registeredByName", "porteiro"),
		PhotoURL:         firstString(data, "photoUrl", "fotoUrl", "imageUrl"),
		DocumentURL:      firstString(data, "documentUrl", "pdfUrl"),
		Recipient: models.Recipient{
			BlockID:      firstString(data, "blockId", "blocoId"),
			BlockName:    firstString(data, "blockName", "bloco"),
			Unit:         firstString(data, "unit", "apartment", "unitLabel"),
			ResidentID:   firstString(data, "residentId", "moradorId"),
			ResidentName: firstString(data, "residentName", "recipientName", "name"),
			Phone:        firstString(data, "phone", "telefone"),
			Email:        firstString(data, "email"),
		},
		ArrivedAt: firstTime(data, "arrivedAt", "createdAt"),
		UpdatedAt: firstTime(data, "updatedAt", "arrivedAt", "createdAt"),
		Version:   int(firstInt(data, "version")),
	}
	if c.Version == 0 {
		c.Version = 1
	}
	if condo, err := uuid.Parse(firstString(data, "condominiumId", "condominioId")); err == nil {
		c.CondominiumID = id.CondominiumID(condo)
	}
	if staff, err := uuid.Parse(firstString(data, "registeredBy")); err == nil {
		c.RegisteredBy = id.StaffID(staff)
	}

	switch strings.ToLower(firstString(data, "status")) {
	case "picked_up", "picked-up", "retirada", "entregue":
		c.Status = models.StatusPickedUp
	default:
		c.Status = models.StatusPending
	}
	if ev, err := uuid.Parse(firstString(data, "evidenceId")); err == nil {
		evID := id.EvidenceID(ev)
		c.EvidenceID = &evID
	}
	if at := firstTime(data, "pickedUpAt", "retiradaEm"); !at.IsZero() {
		c.PickedUpAt = &at
	}
	return c
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstTime(data map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		if v, ok := data[k].(time.Time); ok && !v.IsZero() {
			return v
		}
	}
	return time.Time{}
}

func firstInt(data map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := data[k].(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

type evidenceDocument struct {
	CorrespondenceID      string    `firestore:"correspondenceId"`
	CondominiumID         string    `firestore:"condominiumId"`
	CollectorName         string    `firestore:"collectorName"`
	CollectorDocument     string    `firestore:"collectorDocument,omitempty"`
	CollectorPhone        string    `firestore:"collectorPhone,omitempty"`
	ReleasedBy            string    `firestore:"releasedBy"`
	ReleasedByName        string    `firestore:"releasedByName,omitempty"`
	PickedUpAt            time.Time `firestore:"pickedUpAt"`
	Notes                 string    `firestore:"notes,omitempty"`
	VerificationCode      string    `firestore:"verificationCode"`
	Terminal              string    `firestore:"terminal,omitempty"`
	HasCollectorSignature bool      `firestore:"hasCollectorSignature"`
	HasStaffSignature     bool      `firestore:"hasStaffSignature"`
	HasPhoto              bool      `firestore:"hasPhoto"`
	CollectorSignatureURL string    `firestore:"collectorSignatureUrl,omitempty"`
	StaffSignatureURL     string    `firestore:"staffSignatureUrl,omitempty"`
	PhotoURL              string    `firestore:"photoUrl,omitempty"`
	ReceiptURL            string    `firestore:"receiptUrl,omitempty"`
}

func toEvidenceDocument(ev *models.PickupEvidence) evidenceDocument {
	return evidenceDocument{
		CorrespondenceID:      ev.CorrespondenceID.String(),
		CondominiumID:         ev.CondominiumID.String(),
		CollectorName:         ev.CollectorName,
		CollectorDocument:     ev.CollectorDocument,
		CollectorPhone:        ev.CollectorPhone,
		ReleasedBy:            ev.ReleasedBy.String(),
		ReleasedByName:        ev.ReleasedByName,
		PickedUpAt:            ev.PickedUpAt,
		Notes:                 ev.Notes,
		VerificationCode:      ev.VerificationCode,
		Terminal:              ev.Terminal,
		HasCollectorSignature: ev.HasCollectorSignature,
		HasStaffSignature:     ev.HasStaffSignature,
		HasPhoto:              ev.HasPhoto,
		CollectorSignatureURL: ev.CollectorSignatureURL,
		StaffSignatureURL:     ev.StaffSignatureURL,
		PhotoURL:              ev.PhotoURL,
		ReceiptURL:            ev.ReceiptURL,
	}
}

func (d evidenceDocument) toModel(docID string) (*models.PickupEvidence, error) {
	evID, err := uuid.Parse(docID)
	if err != nil {
		return nil, fmt.Errorf("evidence document id %q: %w", docID, err)
	}
	ev := &models.PickupEvidence{
		ID:                    id.EvidenceID(evID),
		CollectorName:         d.CollectorName,
		CollectorDocument:     d.CollectorDocument,
		CollectorPhone:        d.CollectorPhone,
		ReleasedByName:        d.ReleasedByName,
		PickedUpAt:            d.PickedUpAt,
		Notes:                 d.Notes,
		VerificationCode:      d.VerificationCode,
		Terminal:              d.Terminal,
		HasCollectorSignature: d.HasCollectorSignature,
		HasStaffSignature:     d.HasStaffSignature,
		HasPhoto:              d.HasPhoto,
		CollectorSignatureURL: d.CollectorSignatureURL,
		StaffSignatureURL:     d.StaffSignatureURL,
		PhotoURL:              d.PhotoURL,
		ReceiptURL:            d.ReceiptURL,
	}
	if u, err := uuid.Parse(d.CorrespondenceID); err == nil {
		ev.CorrespondenceID = id.CorrespondenceID(u)
	}
	if u, err := uuid.Parse(d.CondominiumID); err == nil {
		ev.CondominiumID = id.CondominiumID(u)
	}
	if u, err := uuid.Parse(d.ReleasedBy); err == nil {
		ev.ReleasedBy = id.StaffID(u)
	}
	return ev, nil
}
