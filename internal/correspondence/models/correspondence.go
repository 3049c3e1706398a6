package models

import (
	"strings"
	"time"

	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

// Status is the lifecycle position of a correspondence.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPickedUp Status = "picked_up"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusPickedUp
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusPickedUp
}

// CanTransitionTo allows only pending -> picked_up.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next == StatusPickedUp
}

// Recipient identifies where an item is going.
type Recipient struct {
	BlockID      string `json:"block_id,omitempty"`
	BlockName    string `json:"block_name"`
	Unit         string `json:"unit"`
	ResidentID   string `json:"resident_id,omitempty"`
	ResidentName string `json:"resident_name"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
}

// Correspondence is one physical item awaiting or having completed pickup.
//
// Invariants:
//   - Protocol, CondominiumID, Unit, BlockName and ResidentName are non-empty
//   - Status moves pending -> picked_up exactly once
//   - a picked_up record carries EvidenceID and PickedUpAt
//   - Version increases by one on every stored write
type Correspondence struct {
	ID               id.CorrespondenceID `json:"id"`
	Protocol         string              `json:"protocol"`
	CondominiumID    id.CondominiumID    `json:"condominium_id"`
	CondominiumName  string              `json:"condominium_name"`
	Recipient        Recipient           `json:"recipient"`
	Note             string              `json:"note,omitempty"`
	ArrivedAt        time.Time           `json:"arrived_at"`
	RegisteredBy     id.StaffID          `json:"registered_by"`
	RegisteredByName string              `json:"registered_by_name,omitempty"`
	Status           Status              `json:"status"`
	PhotoURL         string              `json:"photo_url,omitempty"`
	DocumentURL      string              `json:"document_url,omitempty"`
	EvidenceID       *id.EvidenceID      `json:"evidence_id,omitempty"`
	PickedUpAt       *time.Time          `json:"picked_up_at,omitempty"`
	Version          int                 `json:"version"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// NewCorrespondence builds a pending record from a validated draft.
func NewCorrespondence(
	corrID id.CorrespondenceID,
	protocol string,
	draft Draft,
	staffID id.StaffID,
	staffName string,
	now time.Time,
) (*Correspondence, error) {
	if strings.TrimSpace(protocol) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "protocol cannot be empty")
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return &Correspondence{
		ID:               corrID,
		Protocol:         protocol,
		CondominiumID:    draft.CondominiumID,
		CondominiumName:  draft.CondominiumName,
		Recipient:        draft.Recipient,
		Note:             draft.Note,
		ArrivedAt:        now,
		RegisteredBy:     staffID,
		RegisteredByName: staffName,
		Status:           StatusPending,
		Version:          1,
		UpdatedAt:        now,
	}, nil
}

func (c *Correspondence) IsPending() bool {
	return c.Status == StatusPending
}

// CanPickUp checks the pending -> picked_up transition.
// Use with ApplyPickup in Execute callbacks.
func (c *Correspondence) CanPickUp() error {
	if !c.Status.CanTransitionTo(StatusPickedUp) {
		return dErrors.New(dErrors.CodeConflict, "correspondence already picked up")
	}
	return nil
}

// ApplyPickup flips the record to picked_up and links the evidence.
// Call CanPickUp first.
func (c *Correspondence) ApplyPickup(evidenceID id.EvidenceID, at time.Time) {
	c.Status = StatusPickedUp
	c.EvidenceID = &evidenceID
	c.PickedUpAt = &at
	c.UpdatedAt = at
}

// MarkPickedUp validates and applies the pickup in one call.
func (c *Correspondence) MarkPickedUp(evidenceID id.EvidenceID, at time.Time) error {
	if err := c.CanPickUp(); err != nil {
		return err
	}
	c.ApplyPickup(evidenceID, at)
	return nil
}

// ApplyArtifacts copies non-empty URLs from p.
func (c *Correspondence) ApplyArtifacts(p ArtifactPatch) {
	if p.PhotoURL != "" {
		c.PhotoURL = p.PhotoURL
	}
	if p.DocumentURL != "" {
		c.DocumentURL = p.DocumentURL
	}
	if !p.At.IsZero() {
		c.UpdatedAt = p.At
	}
}

// ArtifactPatch carries blob URLs produced after registration.
type ArtifactPatch struct {
	PhotoURL    string
	DocumentURL string
	At          time.Time
}

func (p ArtifactPatch) IsEmpty() bool {
	return p.PhotoURL == "" && p.DocumentURL == ""
}

// Draft is the registration input.
type Draft struct {
	CondominiumID   id.CondominiumID `json:"-"`
	CondominiumName string           `json:"condominium_name"`
	Recipient       Recipient        `json:"recipient"`
	Note            string           `json:"note"`
}

// Normalize trims every free-text field.
func (d *Draft) Normalize() {
	d.CondominiumName = strings.TrimSpace(d.CondominiumName)
	d.Note = strings.TrimSpace(d.Note)
	r := &d.Recipient
	r.BlockID = strings.TrimSpace(r.BlockID)
	r.BlockName = strings.TrimSpace(r.BlockName)
	r.Unit = strings.TrimSpace(r.Unit)
	r.ResidentID = strings.TrimSpace(r.ResidentID)
	r.ResidentName = strings.TrimSpace(r.ResidentName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.TrimSpace(r.Email)
}

// Validate checks the destination fields required to register an item.
func (d Draft) Validate() error {
	if d.CondominiumID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "condominium is required")
	}
	if d.CondominiumName == "" {
		return dErrors.New(dErrors.CodeValidation, "condominium name is required")
	}
	if d.Recipient.BlockName == "" && d.Recipient.BlockID == "" {
		return dErrors.New(dErrors.CodeValidation, "block is required")
	}
	if d.Recipient.Unit == "" {
		return dErrors.New(dErrors.CodeValidation, "unit is required")
	}
	if d.Recipient.ResidentName == "" {
		return dErrors.New(dErrors.CodeValidation, "resident is required")
	}
	if len(d.Note) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "note must be 2000 characters or less")
	}
	return nil
}

// Clone returns a deep copy safe to hand out of a store.
func (c *Correspondence) Clone() *Correspondence {
	if c == nil {
		return nil
	}
	out := *c
	if c.EvidenceID != nil {
		ev := *c.EvidenceID
		out.EvidenceID = &ev
	}
	if c.PickedUpAt != nil {
		at := *c.PickedUpAt
		out.PickedUpAt = &at
	}
	return &out
}
