package verification

import (
	"context"
	"strings"

	"github.com/google/uuid"

	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

// CheckRequest carries a code typed from a receipt or the raw content of a
// scanned receipt QR. When both are given the typed code wins.
type CheckRequest struct {
	Code    string `json:"code,omitempty"`
	Payload string `json:"payload,omitempty"`
}

func (r *CheckRequest) Validate() error {
	r.Code = strings.TrimSpace(r.Code)
	r.Payload = strings.TrimSpace(r.Payload)
	if r.Code == "" && r.Payload == "" {
		return dErrors.New(dErrors.CodeValidation, "code or payload is required")
	}
	return nil
}

// CheckResult answers whether a receipt belongs to the record it points at.
type CheckResult struct {
	Valid    bool   `json:"valid"`
	Protocol string `json:"protocol"`
	Status   string `json:"status"`
}

// Check recomputes the pickup code of the correspondence behind raw and
// compares it with the one presented. Pending records never match. It reads
// the store directly because the code is derived from the evidence id, which
// the public view does not carry.
func (r *Resolver) Check(ctx context.Context, raw string, req CheckRequest) (*CheckResult, error) {
	if r.coder == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "code checks are not enabled")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}

	code := req.Code
	protocol := ""
	if req.Payload != "" {
		p, err := DecodePayload(req.Payload)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable QR payload")
		}
		protocol = p.Protocol
		if code == "" {
			code = p.Code
		}
	}
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "the scanned QR carries no verification code")
	}

	c, ev, err := r.correspondences.LookupCorrespondence(ctx, id.CorrespondenceID(parsed))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, err
	}

	res := &CheckResult{Protocol: c.Protocol, Status: string(c.Status)}
	if !c.Status.IsTerminal() || ev == nil {
		return res, nil
	}
	if protocol != "" && protocol != c.Protocol {
		return res, nil
	}
	res.Valid = r.coder.Matches(code, c.Protocol, ev.ID.String(), ev.PickedUpAt.Unix())
	return res, nil
}
