package models

import (
	"strings"
	"time"

	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

// PickupEvidence records who collected an item and how it was proven.
// It is immutable after creation except for its artifact URLs.
type PickupEvidence struct {
	ID                    id.EvidenceID       `json:"id"`
	CorrespondenceID      id.CorrespondenceID `json:"correspondence_id"`
	CondominiumID         id.CondominiumID    `json:"condominium_id"`
	CollectorName         string              `json:"collector_name"`
	CollectorDocument     string              `json:"collector_document,omitempty"`
	CollectorPhone        string              `json:"collector_phone,omitempty"`
	ReleasedBy            id.StaffID          `json:"released_by"`
	ReleasedByName        string              `json:"released_by_name,omitempty"`
	PickedUpAt            time.Time           `json:"picked_up_at"`
	Notes                 string              `json:"notes,omitempty"`
	VerificationCode      string              `json:"verification_code"`
	Terminal              string              `json:"terminal,omitempty"`
	HasCollectorSignature bool                `json:"has_collector_signature"`
	HasStaffSignature     bool                `json:"has_staff_signature"`
	HasPhoto              bool                `json:"has_photo"`
	CollectorSignatureURL string              `json:"collector_signature_url,omitempty"`
	StaffSignatureURL     string              `json:"staff_signature_url,omitempty"`
	PhotoURL              string              `json:"photo_url,omitempty"`
	ReceiptURL            string              `json:"receipt_url,omitempty"`
}

// ApplyArtifacts copies non-empty URLs from p.
func (e *PickupEvidence) ApplyArtifacts(p EvidenceArtifacts) {
	if p.CollectorSignatureURL != "" {
		e.CollectorSignatureURL = p.CollectorSignatureURL
	}
	if p.StaffSignatureURL != "" {
		e.StaffSignatureURL = p.StaffSignatureURL
	}
	if p.PhotoURL != "" {
		e.PhotoURL = p.PhotoURL
	}
	if p.ReceiptURL != "" {
		e.ReceiptURL = p.ReceiptURL
	}
}

// EvidenceArtifacts carries blob URLs produced after pickup.
type EvidenceArtifacts struct {
	CollectorSignatureURL string
	StaffSignatureURL     string
	PhotoURL              string
	ReceiptURL            string
}

func (p EvidenceArtifacts) IsEmpty() bool {
	return p == EvidenceArtifacts{}
}

// PickupDraft is the pickup input. Image fields hold raw uploaded bytes.
type PickupDraft struct {
	CollectorName      string `json:"collector_name"`
	CollectorDocument  string `json:"collector_document"`
	CollectorPhone     string `json:"collector_phone"`
	Notes              string `json:"notes"`
	CollectorSignature []byte `json:"-"`
	StaffSignature     []byte `json:"-"`
	Photo              []byte `json:"-"`
	Terminal           string `json:"-"`
}

func (d *PickupDraft) Normalize() {
	d.CollectorName = strings.TrimSpace(d.CollectorName)
	d.CollectorDocument = strings.TrimSpace(d.CollectorDocument)
	d.CollectorPhone = strings.TrimSpace(d.CollectorPhone)
	d.Notes = strings.TrimSpace(d.Notes)
}

// PickupPolicy lists the evidence a condominium demands before release.
type PickupPolicy struct {
	RequireResidentSignature bool `json:"require_resident_signature"`
	RequireCollectorDocument bool `json:"require_collector_document"`
	RequireHandoffPhoto      bool `json:"require_handoff_photo"`
}

// Check validates d against the policy. The collector name is always
// mandatory.
func (p PickupPolicy) Check(d PickupDraft) error {
	if d.CollectorName == "" {
		return dErrors.New(dErrors.CodeValidation, "collector name is required")
	}
	if p.RequireResidentSignature && len(d.CollectorSignature) == 0 {
		return dErrors.New(dErrors.CodeValidation, "collector signature is required")
	}
	if p.RequireCollectorDocument && d.CollectorDocument == "" {
		return dErrors.New(dErrors.CodeValidation, "collector document is required")
	}
	if p.RequireHandoffPhoto && len(d.Photo) == 0 {
		return dErrors.New(dErrors.CodeValidation, "handoff photo is required")
	}
	return nil
}
