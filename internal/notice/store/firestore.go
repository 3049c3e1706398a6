package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"frontdesk/internal/notice/models"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/platform/sentinel"
)

const noticeCollection = "notices"

type noticeDocument struct {
	Protocol        string    `firestore:"protocol"`
	CondominiumID   string    `firestore:"condominiumId"`
	CondominiumName string    `firestore:"condominiumName"`
	BlockName       string    `firestore:"blockName,omitempty"`
	Unit            string    `firestore:"unit,omitempty"`
	RecipientName   string    `firestore:"recipientName"`
	Phone           string    `firestore:"phone,omitempty"`
	Email           string    `firestore:"email,omitempty"`
	Title           string    `firestore:"title,omitempty"`
	Message         string    `firestore:"message"`
	PhotoURL        string    `firestore:"photoUrl,omitempty"`
	DocumentURL     string    `firestore:"documentUrl,omitempty"`
	SenderID        string    `firestore:"senderId"`
	SenderName      string    `firestore:"senderName,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

// FirestoreStore keeps notices in the "notices" collection.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Create(ctx context.Context, n *models.Notice) error {
	doc := noticeDocument{
		Protocol:        n.Protocol,
		CondominiumID:   n.CondominiumID.String(),
		CondominiumName: n.CondominiumName,
		BlockName:       n.Recipient.BlockName,
		Unit:            n.Recipient.Unit,
		RecipientName:   n.Recipient.Name,
		Phone:           n.Recipient.Phone,
		Email:           n.Recipient.Email,
		Title:           n.Title,
		Message:         n.Message,
		PhotoURL:        n.PhotoURL,
		DocumentURL:     n.DocumentURL,
		SenderID:        n.SenderID.String(),
		SenderName:      n.SenderName,
		CreatedAt:       n.CreatedAt,
	}
	if _, err := s.client.Collection(noticeCollection).Doc(n.ID.String()).Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create notice: %w", err)
	}
	return nil
}

func (s *FirestoreStore) FindByID(ctx context.Context, noticeID id.NoticeID) (*models.Notice, error) {
	snap, err := s.client.Collection(noticeCollection).Doc(noticeID.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find notice: %w", err)
	}
	var doc noticeDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode notice: %w", err)
	}
	n := &models.Notice{
		ID:              noticeID,
		Protocol:        doc.Protocol,
		CondominiumName: doc.CondominiumName,
		Recipient: models.Recipient{
			BlockName: doc.BlockName,
			Unit:      doc.Unit,
			Name:      doc.RecipientName,
			Phone:     doc.Phone,
			Email:     doc.Email,
		},
		Title:       doc.Title,
		Message:     doc.Message,
		PhotoURL:    doc.PhotoURL,
		DocumentURL: doc.DocumentURL,
		SenderName:  doc.SenderName,
		CreatedAt:   doc.CreatedAt,
	}
	if u, err := uuid.Parse(doc.CondominiumID); err == nil {
		n.CondominiumID = id.CondominiumID(u)
	}
	if u, err := uuid.Parse(doc.SenderID); err == nil {
		n.SenderID = id.StaffID(u)
	}
	return n, nil
}

func (s *FirestoreStore) PatchArtifacts(ctx context.Context, noticeID id.NoticeID, p models.ArtifactPatch) error {
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
	if _, err := s.client.Collection(noticeCollection).Doc(noticeID.String()).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("patch notice artifacts: %w", err)
	}
	return nil
}
