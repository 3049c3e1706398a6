// Package handler exposes the front-desk flows over HTTP. Writes take a
// multipart body: a "payload" JSON part plus optional image parts.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"frontdesk/internal/desk"
	cmodels "frontdesk/internal/correspondence/models"
	nmodels "frontdesk/internal/notice/models"
	"frontdesk/internal/notification"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/platform/httputil"
	"frontdesk/pkg/requestcontext"
)

const (
	maxMultipartMemory = 8 << 20
	maxImageBytes      = 15 << 20
	maxArtifactWait    = 30 * time.Second

	// Three images at their limit plus the payload part.
	maxRequestBytes = 3*maxImageBytes + 1<<20
)

type Desk interface {
	Register(ctx context.Context, draft cmodels.Draft, photo []byte) (*desk.Registration, error)
	ConfirmPickup(ctx context.Context, corrID id.CorrespondenceID, draft cmodels.PickupDraft) (*desk.Pickup, error)
	CreateNotice(ctx context.Context, draft nmodels.Draft, photo []byte) (*desk.NoticeResult, error)
	Label(ctx context.Context, corrID id.CorrespondenceID) ([]byte, error)
	Artifacts(ctx context.Context, corrID id.CorrespondenceID) (*desk.ArtifactState, error)
}

type Handler struct {
	desk    Desk
	logger  *slog.Logger
	maxBody int64
}

func New(d Desk, logger *slog.Logger) *Handler {
	return &Handler{desk: d, logger: logger, maxBody: maxRequestBytes}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/correspondences", h.HandleRegister)
	r.Post("/api/correspondences/{id}/pickup", h.HandlePickup)
	r.Get("/api/correspondences/{id}/label", h.HandleLabel)
	r.Get("/api/correspondences/{id}/artifacts", h.HandleArtifacts)
	r.Post("/api/notices", h.HandleCreateNotice)
}

type registerResponse struct {
	Correspondence *cmodels.Correspondence `json:"correspondence"`
	LabelPDF       []byte                  `json:"label_pdf,omitempty"`
	Notification   notification.Message    `json:"notification"`
}

type pickupResponse struct {
	Correspondence *cmodels.Correspondence `json:"correspondence"`
	Evidence       *cmodels.PickupEvidence `json:"evidence"`
	ReceiptPDF     []byte                  `json:"receipt_pdf,omitempty"`
	Notification   notification.Message    `json:"notification"`
}

type noticeResponse struct {
	Notice       *nmodels.Notice      `json:"notice"`
	DocumentPDF  []byte               `json:"document_pdf,omitempty"`
	Notification notification.Message `json:"notification"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var draft cmodels.Draft
	if !h.readPayload(w, r, &draft) {
		return
	}
	photo, ok := h.readFile(w, r, "photo")
	if !ok {
		return
	}
	draft.CondominiumID = requestcontext.CondominiumID(ctx)

	reg, err := h.desk.Register(ctx, draft, photo)
	if err != nil {
		h.logFailure(ctx, "register correspondence failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, registerResponse{
		Correspondence: reg.Correspondence,
		LabelPDF:       reg.Label,
		Notification:   reg.Notification,
	})
}

func (h *Handler) HandlePickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID, err := id.ParseCorrespondenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var draft cmodels.PickupDraft
	if !h.readPayload(w, r, &draft) {
		return
	}
	for name, dst := range map[string]*[]byte{
		"collector_signature": &draft.CollectorSignature,
		"staff_signature":     &draft.StaffSignature,
		"photo":               &draft.Photo,
	} {
		data, ok := h.readFile(w, r, name)
		if !ok {
			return
		}
		*dst = data
	}
	draft.Terminal = terminalLabel(requestcontext.UserAgent(ctx))

	res, err := h.desk.ConfirmPickup(ctx, corrID, draft)
	if err != nil {
		h.logFailure(ctx, "pickup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pickupResponse{
		Correspondence: res.Correspondence,
		Evidence:       res.Evidence,
		ReceiptPDF:     res.Receipt,
		Notification:   res.Notification,
	})
}

func (h *Handler) HandleCreateNotice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var draft nmodels.Draft
	if !h.readPayload(w, r, &draft) {
		return
	}
	photo, ok := h.readFile(w, r, "photo")
	if !ok {
		return
	}
	draft.CondominiumID = requestcontext.CondominiumID(ctx)

	res, err := h.desk.CreateNotice(ctx, draft, photo)
	if err != nil {
		h.logFailure(ctx, "create notice failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, noticeResponse{
		Notice:       res.Notice,
		DocumentPDF:  res.Document,
		Notification: res.Notification,
	})
}

// HandleLabel re-renders the arrival label as application/pdf.
func (h *Handler) HandleLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID, err := id.ParseCorrespondenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pdf, err := h.desk.Label(ctx, corrID)
	if err != nil {
		h.logFailure(ctx, "label rendering failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="label-`+corrID.String()+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// HandleArtifacts waits up to ?wait= (default 0, capped) for background
// uploads before reporting artifact URLs.
func (h *Handler) HandleArtifacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID, err := id.ParseCorrespondenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	wait := time.Duration(0)
	if raw := r.URL.Query().Get("wait"); raw != "" {
		wait, err = time.ParseDuration(raw)
		if err != nil || wait < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "wait must be a duration such as 5s"))
			return
		}
	}
	wait = min(wait, maxArtifactWait)
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	state, err := h.desk.Artifacts(waitCtx, corrID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

// readPayload decodes the "payload" part into dst and runs its Normalize
// method when present.
func (h *Handler) readPayload(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "request body exceeds "+strconv.FormatInt(tooLarge.Limit>>20, 10)+"MB"))
			return false
		}
		h.logger.WarnContext(ctx, "invalid multipart body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart body"))
		return false
	}
	raw := r.FormValue("payload")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "payload is required"))
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		h.logger.WarnContext(ctx, "failed to decode payload",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid payload"))
		return false
	}
	if n, ok := dst.(interface{ Normalize() }); ok {
		n.Normalize()
	}
	return true
}

// readFile returns the bytes of an optional file part. A missing part is
// not an error.
func (h *Handler) readFile(w http.ResponseWriter, r *http.Request, name string) ([]byte, bool) {
	f, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable file "+name))
		return nil, false
	}
	defer f.Close()
	if header.Size > maxImageBytes {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, name+" exceeds "+strconv.Itoa(maxImageBytes>>20)+"MB"))
		return nil, false
	}
	data, err := readAll(f)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable file "+name))
		return nil, false
	}
	return data, true
}

func readAll(f multipart.File) ([]byte, error) {
	return io.ReadAll(io.LimitReader(f, maxImageBytes+1))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
