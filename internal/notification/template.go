// Package notification resolves message templates into text an operator
// sends through WhatsApp or e-mail, and hands composed messages to an
// outbox for an external sender. It never delivers anything itself.
package notification

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"

	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

// Category scopes a template.
type Category string

const (
	CategoryArrival Category = "arrival"
	CategoryPickup  Category = "pickup"
	CategoryNotice  Category = "notice"
)

func (c Category) IsValid() bool {
	return c == CategoryArrival || c == CategoryPickup || c == CategoryNotice
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown template category "+s)
	}
	return c, nil
}

// Tokens understood by the default templates. Any other token resolves to
// an empty string.
const (
	TokenResident    = "RESIDENT"
	TokenUnit        = "UNIT"
	TokenBlock       = "BLOCK"
	TokenProtocol    = "PROTOCOL"
	TokenCondominium = "CONDOMINIUM"
	TokenSender      = "SENDER"
	TokenDate        = "DATE"
	TokenCollector   = "COLLECTOR"
	TokenCode        = "CODE"
	TokenMessage     = "MESSAGE"
	TokenLink        = "LINK"
)

const maxTemplateLength = 2000

// Template is an operator-editable message skeleton for one condominium
// and category.
type Template struct {
	CondominiumID id.CondominiumID `json:"condominium_id"`
	Category      Category         `json:"category"`
	Subject       string           `json:"subject"`
	Body          string           `json:"body"`
	UpdatedAt     time.Time        `json:"updated_at,omitzero"`
	UpdatedBy     id.StaffID       `json:"updated_by,omitzero"`
	Default       bool             `json:"default"`
}

func (t Template) Validate() error {
	if !t.Category.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown template category")
	}
	if strings.TrimSpace(t.Body) == "" {
		return dErrors.New(dErrors.CodeValidation, "template body is required")
	}
	if len(t.Body) > maxTemplateLength || len(t.Subject) > maxTemplateLength {
		return dErrors.New(dErrors.CodeValidation, "template is too long")
	}
	for _, text := range []string{t.Subject, t.Body} {
		if _, err := fasttemplate.NewTemplate(text, "{", "}"); err != nil {
			return dErrors.New(dErrors.CodeValidation, "template has an unclosed {token}")
		}
	}
	return nil
}

var defaults = map[Category]Template{
	CategoryArrival: {
		Category: CategoryArrival,
		Subject:  "Correspondence waiting at the front desk - {PROTOCOL}",
		Body: "Hello {RESIDENT}, a correspondence for unit {UNIT} block {BLOCK} arrived at the front desk of {CONDOMINIUM} on {DATE}. " +
			"Protocol: {PROTOCOL}. Registered by {SENDER}.",
	},
	CategoryPickup: {
		Category: CategoryPickup,
		Subject:  "Correspondence picked up - {PROTOCOL}",
		Body: "Hello {RESIDENT}, the correspondence with protocol {PROTOCOL} was picked up by {COLLECTOR} on {DATE}. " +
			"Verification code: {CODE}.",
	},
	CategoryNotice: {
		Category: CategoryNotice,
		Subject:  "Notice from {CONDOMINIUM}",
		Body:     "Hello {RESIDENT}, {MESSAGE} Protocol: {PROTOCOL}.",
	},
}

// DefaultTemplate returns the built-in template of a category.
func DefaultTemplate(condoID id.CondominiumID, c Category) Template {
	t := defaults[c]
	t.CondominiumID = condoID
	t.Default = true
	return t
}

// Fields maps upper-case token names to values. Tags in a template match
// regardless of case.
type Fields map[string]string

// ErrUnparseable is returned by Resolve for text with an unclosed {token}.
var ErrUnparseable = errors.New("template has an unclosed token")

// Resolve substitutes every {TOKEN} in text. Unknown tokens become empty.
func Resolve(text string, fields Fields) (string, error) {
	t, err := fasttemplate.NewTemplate(text, "{", "}")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		v, ok := fields[strings.ToUpper(strings.TrimSpace(tag))]
		if !ok {
			return 0, nil
		}
		return w.Write([]byte(v))
	}), nil
}
