package models

import (
	"strings"
	"time"

	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

// Recipient is who a notice is addressed to. A notice may go to a whole
// block, so Unit is optional.
type Recipient struct {
	BlockName string `json:"block_name,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Notice is an announcement with no physical item. It is terminal from
// creation: only its artifact URLs are filled in later.
type Notice struct {
	ID              id.NoticeID      `json:"id"`
	Protocol        string           `json:"protocol"`
	CondominiumID   id.CondominiumID `json:"condominium_id"`
	CondominiumName string           `json:"condominium_name"`
	Recipient       Recipient        `json:"recipient"`
	Title           string           `json:"title,omitempty"`
	Message         string           `json:"message"`
	PhotoURL        string           `json:"photo_url,omitempty"`
	DocumentURL     string           `json:"document_url,omitempty"`
	SenderID        id.StaffID       `json:"sender_id"`
	SenderName      string           `json:"sender_name,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Draft is the input for a new notice.
type Draft struct {
	CondominiumID   id.CondominiumID `json:"-"`
	CondominiumName string           `json:"condominium_name"`
	Recipient       Recipient        `json:"recipient"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
}

func (d *Draft) Normalize() {
	d.CondominiumName = strings.TrimSpace(d.CondominiumName)
	d.Title = strings.TrimSpace(d.Title)
	d.Message = strings.TrimSpace(d.Message)
	d.Recipient.BlockName = strings.TrimSpace(d.Recipient.BlockName)
	d.Recipient.Unit = strings.TrimSpace(d.Recipient.Unit)
	d.Recipient.Name = strings.TrimSpace(d.Recipient.Name)
	d.Recipient.Phone = strings.TrimSpace(d.Recipient.Phone)
	d.Recipient.Email = strings.TrimSpace(d.Recipient.Email)
}

func (d Draft) Validate() error {
	if d.CondominiumID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "condominium is required")
	}
	if d.CondominiumName == "" {
		return dErrors.New(dErrors.CodeValidation, "condominium name is required")
	}
	if d.Recipient.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if d.Message == "" {
		return dErrors.New(dErrors.CodeValidation, "message is required")
	}
	if len(d.Message) > 4000 {
		return dErrors.New(dErrors.CodeValidation, "message must be 4000 characters or less")
	}
	return nil
}

func NewNotice(noticeID id.NoticeID, protocol string, d Draft, senderID id.StaffID, senderName string, now time.Time) (*Notice, error) {
	if strings.TrimSpace(protocol) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "protocol cannot be empty")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Notice{
		ID:              noticeID,
		Protocol:        protocol,
		CondominiumID:   d.CondominiumID,
		CondominiumName: d.CondominiumName,
		Recipient:       d.Recipient,
		Title:           d.Title,
		Message:         d.Message,
		SenderID:        senderID,
		SenderName:      senderName,
		CreatedAt:       now,
	}, nil
}

// ArtifactPatch carries blob URLs produced after creation.
type ArtifactPatch struct {
	PhotoURL    string
	DocumentURL string
}

func (p ArtifactPatch) IsEmpty() bool {
	return p.PhotoURL == "" && p.DocumentURL == ""
}

func (n *Notice) ApplyArtifacts(p ArtifactPatch) {
	if p.PhotoURL != "" {
		n.PhotoURL = p.PhotoURL
	}
	if p.DocumentURL != "" {
		n.DocumentURL = p.DocumentURL
	}
}
