package notification

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "frontdesk/pkg/domain"
	"frontdesk/pkg/platform/httputil"
	"frontdesk/pkg/requestcontext"
)

type TemplateEditor interface {
	Get(ctx context.Context, condoID id.CondominiumID, c Category) (Template, error)
	Update(ctx context.Context, t Template) (Template, error)
}

// Handler serves the actor's condominium template set.
type Handler struct {
	service TemplateEditor
	logger  *slog.Logger
}

func NewHandler(service TemplateEditor, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/templates/{category}", h.HandleGet)
	r.Put("/api/templates/{category}", h.HandlePut)
}

type updateTemplateRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (r *updateTemplateRequest) Validate() error {
	return nil
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, err := ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Get(ctx, requestcontext.CondominiumID(ctx), category)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	category, err := ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[updateTemplateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	t, err := h.service.Update(ctx, Template{
		CondominiumID: requestcontext.CondominiumID(ctx),
		Category:      category,
		Subject:       req.Subject,
		Body:          req.Body,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "template update rejected",
			"request_id", requestID,
			"category", string(category),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}
