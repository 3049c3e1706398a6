// Package verification builds the QR payload printed on labels and receipts,
// derives pickup verification codes and serves the public deep-link view.
package verification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Payload is the machine-readable content of the QR symbol. It carries
// nothing beyond what is already printed on the page.
type Payload struct {
	Protocol  string `json:"p"`
	Timestamp int64  `json:"t"`
	Document  string `json:"d,omitempty"`
	Code      string `json:"v,omitempty"`
}

// NewPayload stamps the payload with at's unix seconds.
func NewPayload(protocol string, at time.Time, document, code string) Payload {
	return Payload{
		Protocol:  strings.TrimSpace(protocol),
		Timestamp: at.Unix(),
		Document:  strings.TrimSpace(document),
		Code:      strings.TrimSpace(code),
	}
}

// Time returns the payload timestamp in UTC.
func (p Payload) Time() time.Time {
	return time.Unix(p.Timestamp, 0).UTC()
}

// Encode serializes the payload as compact JSON. Field order is fixed by the
// struct, so identical inputs give identical bytes.
func (p Payload) Encode() (string, error) {
	if p.Protocol == "" {
		return "", fmt.Errorf("payload protocol is required")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

// DecodePayload parses a scanned payload. Unknown fields are rejected.
func DecodePayload(raw string) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Protocol == "" {
		return Payload{}, fmt.Errorf("decode payload: missing protocol")
	}
	return p, nil
}
