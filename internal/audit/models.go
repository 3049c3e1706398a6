package audit

import (
	"time"

	id "frontdesk/pkg/domain"
)

// Action names an audited lifecycle step.
type Action string

const (
	ActionRegistered           Action = "correspondence_registered"
	ActionPickedUp             Action = "correspondence_picked_up"
	ActionPickupRejected       Action = "pickup_rejected"
	ActionNoticeCreated        Action = "notice_created"
	ActionArtifactUploadFailed Action = "artifact_upload_failed"
	ActionTemplateUpdated      Action = "template_updated"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time
	Action        Action
	CondominiumID id.CondominiumID
	ActorID       id.StaffID
	// Subject is the id of the correspondence, evidence or notice acted on.
	Subject   string
	Protocol  string
	RequestID string
	Reason    string
}
