package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frontdesk/internal/notice/models"
	"frontdesk/internal/notice/service"
	"frontdesk/internal/notice/store"
	"frontdesk/internal/protocol"
	id "frontdesk/pkg/domain"
	"frontdesk/pkg/requestcontext"
	"frontdesk/pkg/testutil"
)

func seedNotice(t *testing.T, st *store.InMemoryStore, condo id.CondominiumID, unit string) *models.Notice {
	t.Helper()
	n := &models.Notice{
		ID:              id.NewNoticeID(),
		Protocol:        "20260401N1",
		CondominiumID:   condo,
		CondominiumName: "Residencial Aurora",
		Recipient:       models.Recipient{BlockName: "B", Unit: unit, Name: "Maria Souza"},
		Message:         "Water shut off on Friday",
		CreatedAt:       time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.Create(context.Background(), n))
	return n
}

func serve(t *testing.T, svc Service, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return testutil.DoRequest(r, req)
}

func TestHandleGet(t *testing.T) {
	st := store.NewInMemory()
	svc := service.New(st, protocol.New())
	doorman := testutil.NewActor("doorman")
	n := seedNotice(t, st, doorman.CondominiumID, "204")

	t.Run("staff of the condominium read the notice", func(t *testing.T) {
		rec := serve(t, svc, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/api/notices/"+n.ID.String()), doorman))
		require.Equal(t, http.StatusOK, rec.Code)
		body := testutil.UnmarshalResponse[models.Notice](t, rec)
		assert.Equal(t, n.ID, body.ID)
		assert.Equal(t, "Water shut off on Friday", body.Message)
	})

	t.Run("staff of another condominium are refused", func(t *testing.T) {
		rec := serve(t, svc, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/api/notices/"+n.ID.String()), testutil.NewActor("doorman")))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("resident of another unit sees nothing", func(t *testing.T) {
		resident := testutil.NewActor("resident")
		resident.CondominiumID = doorman.CondominiumID
		req := testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/api/notices/"+n.ID.String()), resident)
		req = req.WithContext(requestcontext.WithUnit(req.Context(), "101"))
		assert.Equal(t, http.StatusNotFound, serve(t, svc, req).Code)
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		rec := serve(t, svc, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/api/notices/"+uuid.NewString()), doorman))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = serve(t, svc, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/api/notices/not-a-uuid"), doorman))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
