package artifacts

import "strings"

// TargetKind names the record a job patches.
type TargetKind string

const (
	TargetCorrespondence TargetKind = "correspondence"
	TargetEvidence       TargetKind = "evidence"
	TargetNotice         TargetKind = "notice"
)

// Slot names an artifact on its record.
type Slot string

const (
	SlotPhoto              Slot = "photo"
	SlotDocument           Slot = "document"
	SlotReceipt            Slot = "receipt"
	SlotCollectorSignature Slot = "collector_signature"
	SlotStaffSignature     Slot = "staff_signature"
	SlotHandoffPhoto       Slot = "handoff_photo"
)

// Target identifies the record to patch. ParentID is the correspondence of
// an evidence target and empty otherwise.
type Target struct {
	Kind     TargetKind
	ID       string
	ParentID string
}

// Key groups in-flight tasks by the record a caller would wait on.
func (t Target) Key() string {
	if t.ParentID != "" {
		return t.ParentID
	}
	return t.ID
}

// Upload is one blob to store.
type Upload struct {
	Slot        Slot
	Path        string
	Data        []byte
	ContentType string
}

// Job is the unit of background persistence for one user action.
type Job struct {
	Target        Target
	CondominiumID string
	Uploads       []Upload
}

// URLs maps each stored slot to its public URL.
type URLs map[Slot]string

// Result reports what a task achieved. Failed lists slots whose upload
// failed; PatchErr is set when the record could not be patched.
type Result struct {
	URLs     URLs
	Failed   []Slot
	PatchErr error
}

func (r Result) Complete() bool {
	return len(r.Failed) == 0 && r.PatchErr == nil
}

// BlobPath joins path segments under a condominium prefix.
func BlobPath(condoID string, parts ...string) string {
	segs := append([]string{"condominiums", condoID}, parts...)
	for i, s := range segs {
		segs[i] = strings.Trim(s, "/")
	}
	return strings.Join(segs, "/")
}
