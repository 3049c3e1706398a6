package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"frontdesk/internal/correspondence/models"
	"frontdesk/internal/correspondence/service"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/platform/httputil"
	"frontdesk/pkg/requestcontext"
)

// Service is the read side of the correspondence service.
type Service interface {
	Search(ctx context.Context, q models.SearchQuery) ([]*models.Correspondence, error)
	Get(ctx context.Context, corrID id.CorrespondenceID) (*service.Detail, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/correspondences", h.HandleSearch)
	r.Get("/api/correspondences/{id}", h.HandleGet)
}

type correspondenceResponse struct {
	ID            string     `json:"id"`
	Protocol      string     `json:"protocol"`
	Status        string     `json:"status"`
	Block         string     `json:"block"`
	Unit          string     `json:"unit"`
	Resident      string     `json:"resident"`
	Note          string     `json:"note,omitempty"`
	ArrivedAt     time.Time  `json:"arrived_at"`
	RegisteredBy  string     `json:"registered_by,omitempty"`
	PhotoURL      string     `json:"photo_url,omitempty"`
	DocumentURL   string     `json:"document_url,omitempty"`
	PickedUpAt    *time.Time `json:"picked_up_at,omitempty"`
	CollectorName string     `json:"collector_name,omitempty"`
	Verification  string     `json:"verification_code,omitempty"`
	ReceiptURL    string     `json:"receipt_url,omitempty"`
}

type searchResponse struct {
	Items []correspondenceResponse `json:"items"`
	Count int                      `json:"count"`
}

func toResponse(c *models.Correspondence, ev *models.PickupEvidence) correspondenceResponse {
	out := correspondenceResponse{
		ID:           c.ID.String(),
		Protocol:     c.Protocol,
		Status:       string(c.Status),
		Block:        c.Recipient.BlockName,
		Unit:         c.Recipient.Unit,
		Resident:     c.Recipient.ResidentName,
		Note:         c.Note,
		ArrivedAt:    c.ArrivedAt,
		RegisteredBy: c.RegisteredByName,
		PhotoURL:     c.PhotoURL,
		DocumentURL:  c.DocumentURL,
		PickedUpAt:   c.PickedUpAt,
	}
	if ev != nil {
		out.CollectorName = ev.CollectorName
		out.Verification = ev.VerificationCode
		out.ReceiptURL = ev.ReceiptURL
	}
	return out
}

// HandleSearch serves GET /api/correspondences?q=&scope=&limit=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	q := models.SearchQuery{
		CondominiumID: requestcontext.CondominiumID(ctx),
		Term:          query.Get("q"),
		Scope:         models.ParseScope(query.Get("scope")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		q.Limit = limit
	}

	items, err := h.service.Search(ctx, q)
	if err != nil {
		h.logger.WarnContext(ctx, "correspondence search failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := searchResponse{Items: make([]correspondenceResponse, 0, len(items)), Count: len(items)}
	for _, c := range items {
		resp.Items = append(resp.Items, toResponse(c, nil))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID, err := id.ParseCorrespondenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	detail, err := h.service.Get(ctx, corrID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(detail.Correspondence, detail.Evidence))
}
