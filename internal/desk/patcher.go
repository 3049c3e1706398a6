package desk

import (
	"context"
	"fmt"

	"frontdesk/internal/artifacts"
	cmodels "frontdesk/internal/correspondence/models"
	nmodels "frontdesk/internal/notice/models"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/requestcontext"
)

type CorrespondenceArtifacts interface {
	AttachArtifacts(ctx context.Context, corrID id.CorrespondenceID, p cmodels.ArtifactPatch) error
	AttachEvidenceArtifacts(ctx context.Context, corrID id.CorrespondenceID, evID id.EvidenceID, p cmodels.EvidenceArtifacts) error
}

type NoticeArtifacts interface {
	AttachArtifacts(ctx context.Context, noticeID id.NoticeID, p nmodels.ArtifactPatch) error
}

// RecordPatcher writes stored artifact URLs back onto the record a job
// targets. It is the artifacts.Patcher the runner is built with.
type RecordPatcher struct {
	correspondences CorrespondenceArtifacts
	notices         NoticeArtifacts
}

func NewRecordPatcher(correspondences CorrespondenceArtifacts, notices NoticeArtifacts) *RecordPatcher {
	return &RecordPatcher{correspondences: correspondences, notices: notices}
}

func (p *RecordPatcher) Patch(ctx context.Context, target artifacts.Target, urls artifacts.URLs) error {
	switch target.Kind {
	case artifacts.TargetCorrespondence:
		corrID, err := id.ParseCorrespondenceID(target.ID)
		if err != nil {
			return err
		}
		return p.correspondences.AttachArtifacts(ctx, corrID, cmodels.ArtifactPatch{
			PhotoURL:    urls[artifacts.SlotPhoto],
			DocumentURL: urls[artifacts.SlotDocument],
			At:          requestcontext.Now(ctx),
		})
	case artifacts.TargetEvidence:
		corrID, err := id.ParseCorrespondenceID(target.ParentID)
		if err != nil {
			return err
		}
		evID, err := id.ParseEvidenceID(target.ID)
		if err != nil {
			return err
		}
		return p.correspondences.AttachEvidenceArtifacts(ctx, corrID, evID, cmodels.EvidenceArtifacts{
			CollectorSignatureURL: urls[artifacts.SlotCollectorSignature],
			StaffSignatureURL:     urls[artifacts.SlotStaffSignature],
			PhotoURL:              urls[artifacts.SlotHandoffPhoto],
			ReceiptURL:            urls[artifacts.SlotReceipt],
		})
	case artifacts.TargetNotice:
		if p.notices == nil {
			return fmt.Errorf("no notice patcher configured")
		}
		noticeID, err := id.ParseNoticeID(target.ID)
		if err != nil {
			return err
		}
		return p.notices.AttachArtifacts(ctx, noticeID, nmodels.ArtifactPatch{
			PhotoURL:    urls[artifacts.SlotPhoto],
			DocumentURL: urls[artifacts.SlotDocument],
		})
	default:
		return fmt.Errorf("unknown artifact target %q", target.Kind)
	}
}
