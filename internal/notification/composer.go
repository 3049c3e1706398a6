package notification

import (
	"log/slog"
	"net/url"
	"strings"
)

// Message is a composed notification ready for an external sender.
type Message struct {
	Subject     string `json:"subject"`
	Text        string `json:"text"`
	Link        string `json:"link"`
	WhatsAppURL string `json:"whatsapp_url,omitempty"`
}

// Composer resolves templates and adds the deep link back to the public
// verification view.
type Composer struct {
	baseURL string
	logger  *slog.Logger
}

type ComposerOption func(*Composer)

func WithComposerLogger(logger *slog.Logger) ComposerOption {
	return func(c *Composer) { c.logger = logger }
}

func NewComposer(baseURL string, opts ...ComposerOption) *Composer {
	c := &Composer{baseURL: strings.TrimRight(baseURL, "/"), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Link is the deep link of a record.
func (c *Composer) Link(recordID string) string {
	return c.baseURL + "/ver/" + recordID
}

// Compose resolves tpl against fields. The deep link is exposed as {LINK}
// and appended to the text unless the template already placed it. phone,
// when present, yields a wa.me link carrying the text.
func (c *Composer) Compose(tpl Template, fields Fields, recordID, phone string) Message {
	link := c.Link(recordID)
	resolved := make(Fields, len(fields)+1)
	for k, v := range fields {
		resolved[strings.ToUpper(k)] = v
	}
	resolved[TokenLink] = link

	fallback := DefaultTemplate(tpl.CondominiumID, tpl.Category)
	text := strings.TrimSpace(c.resolve(tpl, "body", tpl.Body, fallback.Body, resolved))
	if !strings.Contains(text, link) {
		text += "\n\n" + link
	}
	msg := Message{
		Subject: strings.TrimSpace(c.resolve(tpl, "subject", tpl.Subject, fallback.Subject, resolved)),
		Text:    text,
		Link:    link,
	}
	if digits := PhoneDigits(phone); digits != "" {
		msg.WhatsAppURL = "https://wa.me/" + digits + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	}
	return msg
}

// resolve falls back to the built-in text of the category when a stored
// template no longer parses.
func (c *Composer) resolve(tpl Template, part, text, fallback string, fields Fields) string {
	out, err := Resolve(text, fields)
	if err == nil {
		return out
	}
	c.logger.Warn("stored template unparseable, using the default",
		"condominium_id", tpl.CondominiumID.String(),
		"category", string(tpl.Category),
		"part", part,
		"error", err,
	)
	out, err = Resolve(fallback, fields)
	if err != nil {
		return ""
	}
	return out
}

// PhoneDigits strips everything but digits.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
