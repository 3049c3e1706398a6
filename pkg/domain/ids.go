// Package domain holds typed identifiers shared across bounded contexts.
//
// Typed IDs keep a correspondence id from being passed where a condominium
// id is expected. All parse functions reject empty, malformed and nil UUIDs.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "frontdesk/pkg/domain-errors"
)

type (
	CorrespondenceID uuid.UUID
	EvidenceID       uuid.UUID
	NoticeID         uuid.UUID
	CondominiumID    uuid.UUID
	StaffID          uuid.UUID
)

func (id CorrespondenceID) String() string { return uuid.UUID(id).String() }
func (id EvidenceID) String() string       { return uuid.UUID(id).String() }
func (id NoticeID) String() string         { return uuid.UUID(id).String() }
func (id CondominiumID) String() string    { return uuid.UUID(id).String() }
func (id StaffID) String() string          { return uuid.UUID(id).String() }

func (id CorrespondenceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id NoticeID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id CondominiumID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id StaffID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }

func NewCorrespondenceID() CorrespondenceID { return CorrespondenceID(uuid.New()) }
func NewEvidenceID() EvidenceID             { return EvidenceID(uuid.New()) }
func NewNoticeID() NoticeID                 { return NoticeID(uuid.New()) }

// maxIDLength bounds input before uuid.Parse sees it.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseCorrespondenceID(s string) (CorrespondenceID, error) {
	u, err := parseUUID("correspondence id", s)
	return CorrespondenceID(u), err
}

func ParseEvidenceID(s string) (EvidenceID, error) {
	u, err := parseUUID("evidence id", s)
	return EvidenceID(u), err
}

func ParseNoticeID(s string) (NoticeID, error) {
	u, err := parseUUID("notice id", s)
	return NoticeID(u), err
}

func ParseCondominiumID(s string) (CondominiumID, error) {
	u, err := parseUUID("condominium id", s)
	return CondominiumID(u), err
}

func ParseStaffID(s string) (StaffID, error) {
	u, err := parseUUID("staff id", s)
	return StaffID(u), err
}

// Text encoding keeps ids readable in JSON and cache payloads.

func (id CorrespondenceID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EvidenceID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id NoticeID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id CondominiumID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id StaffID) MarshalText() ([]byte, error)          { return uuid.UUID(id).MarshalText() }

func (id *CorrespondenceID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EvidenceID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *NoticeID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CondominiumID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *StaffID) UnmarshalText(b []byte) error          { return (*uuid.UUID)(id).UnmarshalText(b) }
