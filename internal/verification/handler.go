package verification

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/platform/httputil"
	"frontdesk/pkg/requestcontext"
)

type ViewResolver interface {
	Resolve(ctx context.Context, raw string) (*View, error)
	Check(ctx context.Context, raw string, req CheckRequest) (*CheckResult, error)
}

const maxCheckBody = 4 << 10

// Handler serves the public deep-link view and receipt code checks.
type Handler struct {
	resolver ViewResolver
	logger   *slog.Logger
	limit    func(http.Handler) http.Handler
}

// NewHandler builds the handler. limit wraps the route and may be nil.
func NewHandler(resolver ViewResolver, logger *slog.Logger, limit func(http.Handler) http.Handler) *Handler {
	return &Handler{resolver: resolver, logger: logger, limit: limit}
}

func (h *Handler) Register(r chi.Router) {
	if h.limit != nil {
		r = r.With(h.limit)
	}
	r.Get("/ver/{id}", h.HandleView)
	r.Post("/ver/{id}/check", h.HandleCheck)
}

// HandleView handles GET /ver/{id}.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := chi.URLParam(r, "id")

	view, err := h.resolver.Resolve(ctx, raw)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to resolve verification view",
				"request_id", requestcontext.RequestID(ctx),
				"id", raw,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleCheck handles POST /ver/{id}/check.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := chi.URLParam(r, "id")
	requestID := requestcontext.RequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxCheckBody)
	req, ok := httputil.DecodeAndPrepare[CheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.resolver.Check(ctx, raw, *req)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to check verification code",
				"request_id", requestID,
				"id", raw,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, res)
}
