// Package receipt renders arrival labels, pickup receipts and notices as
// PDF. Every document carries its protocol, condominium name and QR payload
// so it can be re-verified without the store.
package receipt

import (
	"strings"
	"time"

	dErrors "frontdesk/pkg/domain-errors"
)

// Kind selects title and page size. All kinds share one layout.
type Kind string

const (
	KindArrivalLabel  Kind = "arrival_label"
	KindPickupReceipt Kind = "pickup_receipt"
	KindNotice        Kind = "notice"
)

func (k Kind) Title() string {
	switch k {
	case KindPickupReceipt:
		return "Pickup receipt"
	case KindNotice:
		return "Notice"
	default:
		return "Arrival label"
	}
}

func (k Kind) pageSize() string {
	if k == KindArrivalLabel {
		return "A5"
	}
	return "A4"
}

// Recipient is printed in the first card.
type Recipient struct {
	Block string
	Unit  string
	Name  string
}

// Section is a titled free-text card. Body wraps to the card width.
type Section struct {
	Title string
	Body  string
}

// Field is a label/value row inside the details card.
type Field struct {
	Label string
	Value string
}

// Signature is one slot of the signature strip. A nil image leaves the
// ruled line blank.
type Signature struct {
	Image   []byte
	Caption string
}

// Document is everything a render needs. Only CondominiumName and Protocol
// are required; every other field has an empty variant.
type Document struct {
	Kind            Kind
	CondominiumName string
	Protocol        string
	Logo            []byte
	SenderName      string
	IssuedAt        time.Time

	Recipient  Recipient
	Details    []Field
	Sections   []Section
	Photo      []byte
	QR         []byte
	QRCaption  string
	Signatures []Signature

	// GeneratedAt stamps the footer; zero means IssuedAt.
	GeneratedAt time.Time
}

// Validate checks only the required fields.
func (d Document) Validate() error {
	if strings.TrimSpace(d.CondominiumName) == "" {
		return dErrors.New(dErrors.CodeValidation, "condominium name is required")
	}
	if strings.TrimSpace(d.Protocol) == "" {
		return dErrors.New(dErrors.CodeValidation, "protocol is required")
	}
	return nil
}

func (d Document) footerTime() time.Time {
	if !d.GeneratedAt.IsZero() {
		return d.GeneratedAt
	}
	return d.IssuedAt
}
