package desk

import (
	"context"

	"github.com/google/uuid"

	"frontdesk/internal/access"
	"frontdesk/internal/artifacts"
	cmodels "frontdesk/internal/correspondence/models"
	"frontdesk/internal/imaging"
	nmodels "frontdesk/internal/notice/models"
	"frontdesk/internal/notification"
	"frontdesk/internal/receipt"
	"frontdesk/internal/verification"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/requestcontext"
)

const (
	contentTypeJPEG = "image/jpeg"
	contentTypePNG  = "image/png"
	contentTypePDF  = "application/pdf"
)

// Registration is what the operator gets back from Register.
type Registration struct {
	Correspondence *cmodels.Correspondence
	Label          []byte
	Notification   notification.Message
	Task           *artifacts.Task
}

// Register stores a new correspondence and renders its label. Photo
// upload and the label upload continue in the background.
func (d *Desk) Register(ctx context.Context, draft cmodels.Draft, photo []byte) (*Registration, error) {
	ctx, span := d.tracer.Start(ctx, "desk.Register")
	defer span.End()

	c, err := d.correspondences.Register(ctx, draft)
	if err != nil {
		return nil, err
	}

	docPhoto := d.images.NormalizeLocal(ctx, photo, imaging.PurposeDocument)
	inline := d.images.NormalizeLocal(ctx, photo, imaging.PurposeInline)
	payload, qr := d.qr(ctx, verification.NewPayload(c.Protocol, c.ArrivedAt, "", ""))
	label := d.render(ctx, arrivalLabel(c, inline, qr, payload))

	condo := c.CondominiumID.String()
	task := d.runner.Start(ctx, artifacts.Job{
		Target:        artifacts.Target{Kind: artifacts.TargetCorrespondence, ID: c.ID.String()},
		CondominiumID: condo,
		Uploads: []artifacts.Upload{
			{Slot: artifacts.SlotPhoto, Path: artifacts.BlobPath(condo, "correspondences", c.ID.String(), "photo.jpg"), Data: docPhoto, ContentType: contentTypeJPEG},
			{Slot: artifacts.SlotDocument, Path: artifacts.BlobPath(condo, "correspondences", c.ID.String(), "label.pdf"), Data: label, ContentType: contentTypePDF},
		},
	})

	msg := d.compose(ctx, c.CondominiumID, notification.CategoryArrival, arrivalFields(c), c.ID.String(), c.Recipient.Phone)
	d.dispatch(ctx, notification.Envelope{
		RecordID:      c.ID.String(),
		CondominiumID: condo,
		Category:      notification.CategoryArrival,
		RecipientName: c.Recipient.ResidentName,
		Phone:         c.Recipient.Phone,
		Email:         c.Recipient.Email,
		Message:       msg,
	})

	return &Registration{Correspondence: c, Label: label, Notification: msg, Task: task}, nil
}

// Pickup is what the operator gets back from ConfirmPickup.
type Pickup struct {
	Correspondence *cmodels.Correspondence
	Evidence       *cmodels.PickupEvidence
	Receipt        []byte
	Notification   notification.Message
	Task           *artifacts.Task
}

// ConfirmPickup records the handoff and renders the receipt. Signature
// images are embedded as received; the handoff photo is normalized.
func (d *Desk) ConfirmPickup(ctx context.Context, corrID id.CorrespondenceID, draft cmodels.PickupDraft) (*Pickup, error) {
	ctx, span := d.tracer.Start(ctx, "desk.ConfirmPickup")
	defer span.End()

	rawPhoto := draft.Photo
	draft.Photo = d.images.NormalizeLocal(ctx, rawPhoto, imaging.PurposeDocument)
	result, err := d.correspondences.ConfirmPickup(ctx, corrID, draft)
	if err != nil {
		return nil, err
	}
	c, ev := result.Correspondence, result.Evidence

	inline := d.images.NormalizeLocal(ctx, rawPhoto, imaging.PurposeInline)
	if inline == nil {
		inline = d.images.FetchNormalized(ctx, c.PhotoURL, imaging.PurposeInline)
	}
	payload, qr := d.qr(ctx, verification.NewPayload(c.Protocol, ev.PickedUpAt, ev.CollectorDocument, ev.VerificationCode))
	doc := d.render(ctx, pickupReceipt(c, ev, inline, qr, payload, draft.CollectorSignature, draft.StaffSignature))

	condo := c.CondominiumID.String()
	base := []string{"correspondences", c.ID.String(), "pickup", ev.ID.String()}
	path := func(name string) string {
		return artifacts.BlobPath(condo, append(append([]string(nil), base...), name)...)
	}
	task := d.runner.Start(ctx, artifacts.Job{
		Target:        artifacts.Target{Kind: artifacts.TargetEvidence, ID: ev.ID.String(), ParentID: c.ID.String()},
		CondominiumID: condo,
		Uploads: []artifacts.Upload{
			{Slot: artifacts.SlotCollectorSignature, Path: path("collector-signature.png"), Data: draft.CollectorSignature, ContentType: contentTypePNG},
			{Slot: artifacts.SlotStaffSignature, Path: path("staff-signature.png"), Data: draft.StaffSignature, ContentType: contentTypePNG},
			{Slot: artifacts.SlotHandoffPhoto, Path: path("handoff.jpg"), Data: draft.Photo, ContentType: contentTypeJPEG},
			{Slot: artifacts.SlotReceipt, Path: path("receipt.pdf"), Data: doc, ContentType: contentTypePDF},
		},
	})

	msg := d.compose(ctx, c.CondominiumID, notification.CategoryPickup, pickupFields(c, ev), c.ID.String(), c.Recipient.Phone)
	d.dispatch(ctx, notification.Envelope{
		RecordID:      c.ID.String(),
		CondominiumID: condo,
		Category:      notification.CategoryPickup,
		RecipientName: c.Recipient.ResidentName,
		Phone:         c.Recipient.Phone,
		Email:         c.Recipient.Email,
		Message:       msg,
	})

	return &Pickup{Correspondence: c, Evidence: ev, Receipt: doc, Notification: msg, Task: task}, nil
}

// NoticeResult is what the operator gets back from CreateNotice.
type NoticeResult struct {
	Notice       *nmodels.Notice
	Document     []byte
	Notification notification.Message
	Task         *artifacts.Task
}

func (d *Desk) CreateNotice(ctx context.Context, draft nmodels.Draft, photo []byte) (*NoticeResult, error) {
	ctx, span := d.tracer.Start(ctx, "desk.CreateNotice")
	defer span.End()

	n, err := d.notices.Create(ctx, draft)
	if err != nil {
		return nil, err
	}
	docPhoto := d.images.NormalizeLocal(ctx, photo, imaging.PurposeDocument)
	inline := d.images.NormalizeLocal(ctx, photo, imaging.PurposeInline)
	payload, qr := d.qr(ctx, verification.NewPayload(n.Protocol, n.CreatedAt, "", ""))
	doc := d.render(ctx, noticeDocument(n, inline, qr, payload))

	condo := n.CondominiumID.String()
	task := d.runner.Start(ctx, artifacts.Job{
		Target:        artifacts.Target{Kind: artifacts.TargetNotice, ID: n.ID.String()},
		CondominiumID: condo,
		Uploads: []artifacts.Upload{
			{Slot: artifacts.SlotPhoto, Path: artifacts.BlobPath(condo, "notices", n.ID.String(), "photo.jpg"), Data: docPhoto, ContentType: contentTypeJPEG},
			{Slot: artifacts.SlotDocument, Path: artifacts.BlobPath(condo, "notices", n.ID.String(), "notice.pdf"), Data: doc, ContentType: contentTypePDF},
		},
	})

	msg := d.compose(ctx, n.CondominiumID, notification.CategoryNotice, noticeFields(n), n.ID.String(), n.Recipient.Phone)
	d.dispatch(ctx, notification.Envelope{
		RecordID:      n.ID.String(),
		CondominiumID: condo,
		Category:      notification.CategoryNotice,
		RecipientName: n.Recipient.Name,
		Phone:         n.Recipient.Phone,
		Email:         n.Recipient.Email,
		Message:       msg,
	})
	return &NoticeResult{Notice: n, Document: doc, Notification: msg, Task: task}, nil
}

// Label re-renders the arrival label from stored data. The stored photo is
// fetched within the image time budget and left out if it does not arrive.
func (d *Desk) Label(ctx context.Context, corrID id.CorrespondenceID) ([]byte, error) {
	detail, err := d.correspondences.Get(ctx, corrID)
	if err != nil {
		return nil, err
	}
	c := detail.Correspondence
	if _, err := access.Require(ctx, access.CapRenderDocuments, c.CondominiumID); err != nil {
		return nil, err
	}
	photo := d.images.FetchNormalized(ctx, c.PhotoURL, imaging.PurposeInline)
	payload, qr := d.qr(ctx, verification.NewPayload(c.Protocol, c.ArrivedAt, "", ""))
	return d.renderer.Render(ctx, arrivalLabel(c, photo, qr, payload))
}

// ArtifactState reports the artifact URLs of a record once its in-flight
// background work, if any, has finished.
type ArtifactState struct {
	PhotoURL    string `json:"photo_url,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
	ReceiptURL  string `json:"receipt_url,omitempty"`
	Pending     bool   `json:"pending"`
}

// Artifacts joins the background tasks of a record before reading it.
// When ctx ends first the current URLs are returned with Pending set, unless
// the work finished in the meantime.
func (d *Desk) Artifacts(ctx context.Context, corrID id.CorrespondenceID) (*ArtifactState, error) {
	key := corrID.String()
	pending := false
	if err := d.runner.Await(ctx, key); err != nil {
		pending = d.runner.Pending(key)
	}
	detail, err := d.correspondences.Get(context.WithoutCancel(ctx), corrID)
	if err != nil {
		return nil, err
	}
	state := &ArtifactState{
		PhotoURL:    detail.Correspondence.PhotoURL,
		DocumentURL: detail.Correspondence.DocumentURL,
		Pending:     pending,
	}
	if detail.Evidence != nil {
		state.ReceiptURL = detail.Evidence.ReceiptURL
	}
	return state, nil
}

// qr encodes the payload. A failure leaves the QR slot empty.
func (d *Desk) qr(ctx context.Context, p verification.Payload) (string, []byte) {
	raw, img, err := verification.EncodeQR(p)
	if err != nil {
		d.logger.WarnContext(ctx, "qr encoding failed, rendering without it",
			"protocol", p.Protocol,
			"error", err,
		)
		return raw, nil
	}
	return raw, img
}

// render returns nil when rendering fails. The record is already stored,
// so the flow continues and the label can be regenerated later.
func (d *Desk) render(ctx context.Context, doc receipt.Document) []byte {
	out, err := d.renderer.Render(ctx, doc)
	if err != nil {
		d.logger.ErrorContext(ctx, "document rendering failed",
			"kind", string(doc.Kind),
			"protocol", doc.Protocol,
			"error", err,
		)
		return nil
	}
	return out
}

func (d *Desk) compose(ctx context.Context, condoID id.CondominiumID, c notification.Category, fields notification.Fields, recordID, phone string) notification.Message {
	tpl := d.templates.Active(ctx, condoID, c)
	return d.composer.Compose(tpl, fields, recordID, phone)
}

func (d *Desk) dispatch(ctx context.Context, e notification.Envelope) {
	if d.dispatcher == nil || (e.Phone == "" && e.Email == "") {
		return
	}
	e.ID = uuid.NewString()
	e.ComposedAt = requestcontext.Now(ctx)
	if err := d.dispatcher.Dispatch(ctx, e); err != nil {
		d.logger.WarnContext(ctx, "notification not queued",
			"record_id", e.RecordID,
			"error", err,
		)
	}
}
