package desk

import (
	"strings"

	cmodels "frontdesk/internal/correspondence/models"
	nmodels "frontdesk/internal/notice/models"
	"frontdesk/internal/notification"
	"frontdesk/internal/receipt"
)

const dateLayout = "02/01/2006 15:04"

// arrivalLabel lays out the label printed when an item arrives.
func arrivalLabel(c *cmodels.Correspondence, photo, qr []byte, payload string) receipt.Document {
	doc := receipt.Document{
		Kind:            receipt.KindArrivalLabel,
		CondominiumName: c.CondominiumName,
		Protocol:        c.Protocol,
		SenderName:      c.RegisteredByName,
		IssuedAt:        c.ArrivedAt,
		Recipient:       recipientOf(c),
		Details: []receipt.Field{
			{Label: "Arrived", Value: c.ArrivedAt.Format(dateLayout)},
			{Label: "Status", Value: "Awaiting pickup"},
		},
		Photo:     photo,
		QR:        qr,
		QRCaption: payload,
	}
	if c.Note != "" {
		doc.Sections = append(doc.Sections, receipt.Section{Title: "Notes", Body: c.Note})
	}
	return doc
}

// pickupReceipt lays out the proof of delivery. Signatures are always
// drawn so a printed copy can be signed by hand.
func pickupReceipt(c *cmodels.Correspondence, ev *cmodels.PickupEvidence, photo, qr []byte, payload string, collectorSig, staffSig []byte) receipt.Document {
	details := []receipt.Field{
		{Label: "Arrived", Value: c.ArrivedAt.Format(dateLayout)},
		{Label: "Picked up", Value: ev.PickedUpAt.Format(dateLayout)},
		{Label: "Collector", Value: ev.CollectorName},
	}
	if ev.CollectorDocument != "" {
		details = append(details, receipt.Field{Label: "Document", Value: ev.CollectorDocument})
	}
	details = append(details,
		receipt.Field{Label: "Released by", Value: ev.ReleasedByName},
		receipt.Field{Label: "Code", Value: ev.VerificationCode},
	)

	doc := receipt.Document{
		Kind:            receipt.KindPickupReceipt,
		CondominiumName: c.CondominiumName,
		Protocol:        c.Protocol,
		SenderName:      ev.ReleasedByName,
		IssuedAt:        ev.PickedUpAt,
		Recipient:       recipientOf(c),
		Details:         details,
		Photo:           photo,
		QR:              qr,
		QRCaption:       payload,
		Signatures: []receipt.Signature{
			{Image: collectorSig, Caption: "Collector: " + ev.CollectorName},
			{Image: staffSig, Caption: "Front desk: " + ev.ReleasedByName},
		},
	}
	if ev.Notes != "" {
		doc.Sections = append(doc.Sections, receipt.Section{Title: "Notes", Body: ev.Notes})
	}
	return doc
}

func noticeDocument(n *nmodels.Notice, photo, qr []byte, payload string) receipt.Document {
	title := n.Title
	if title == "" {
		title = "Message"
	}
	return receipt.Document{
		Kind:            receipt.KindNotice,
		CondominiumName: n.CondominiumName,
		Protocol:        n.Protocol,
		SenderName:      n.SenderName,
		IssuedAt:        n.CreatedAt,
		Recipient: receipt.Recipient{
			Block: n.Recipient.BlockName,
			Unit:  n.Recipient.Unit,
			Name:  n.Recipient.Name,
		},
		Sections:  []receipt.Section{{Title: title, Body: n.Message}},
		Photo:     photo,
		QR:        qr,
		QRCaption: payload,
	}
}

func recipientOf(c *cmodels.Correspondence) receipt.Recipient {
	return receipt.Recipient{
		Block: c.Recipient.BlockName,
		Unit:  c.Recipient.Unit,
		Name:  c.Recipient.ResidentName,
	}
}

func arrivalFields(c *cmodels.Correspondence) notification.Fields {
	return notification.Fields{
		notification.TokenResident:    firstName(c.Recipient.ResidentName),
		notification.TokenUnit:        c.Recipient.Unit,
		notification.TokenBlock:       c.Recipient.BlockName,
		notification.TokenProtocol:    c.Protocol,
		notification.TokenCondominium: c.CondominiumName,
		notification.TokenSender:      c.RegisteredByName,
		notification.TokenDate:        c.ArrivedAt.Format(dateLayout),
	}
}

func pickupFields(c *cmodels.Correspondence, ev *cmodels.PickupEvidence) notification.Fields {
	f := arrivalFields(c)
	f[notification.TokenCollector] = ev.CollectorName
	f[notification.TokenCode] = ev.VerificationCode
	f[notification.TokenDate] = ev.PickedUpAt.Format(dateLayout)
	f[notification.TokenSender] = ev.ReleasedByName
	return f
}

func noticeFields(n *nmodels.Notice) notification.Fields {
	return notification.Fields{
		notification.TokenResident:    firstName(n.Recipient.Name),
		notification.TokenUnit:        n.Recipient.Unit,
		notification.TokenBlock:       n.Recipient.BlockName,
		notification.TokenProtocol:    n.Protocol,
		notification.TokenCondominium: n.CondominiumName,
		notification.TokenSender:      n.SenderName,
		notification.TokenDate:        n.CreatedAt.Format(dateLayout),
		notification.TokenMessage:     n.Message,
	}
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return ""
}
