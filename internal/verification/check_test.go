package verification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmodels "frontdesk/internal/correspondence/models"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

func checkFixture(t *testing.T) (*Resolver, *cmodels.Correspondence, *cmodels.Correspondence, string) {
	t.Helper()
	coder, err := NewCoder("check-secret")
	require.NoError(t, err)

	pending := pendingRecord()
	picked := pendingRecord()
	picked.Protocol = "20260315Q2"
	evID := id.NewEvidenceID()
	at := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	picked.ApplyPickup(evID, at)
	code, err := coder.Code(picked.Protocol, evID.String(), at.Unix())
	require.NoError(t, err)

	corrs := &stubCorrespondences{
		records: map[id.CorrespondenceID]*cmodels.Correspondence{pending.ID: pending, picked.ID: picked},
		evidence: map[id.CorrespondenceID]*cmodels.PickupEvidence{picked.ID: {
			ID:               evID,
			CollectorName:    "Maria",
			PickedUpAt:       at,
			VerificationCode: code,
		}},
	}
	return NewResolver(corrs, stubNotices{}, WithCoder(coder)), pending, picked, code
}

func TestCheck(t *testing.T) {
	resolver, pending, picked, code := checkFixture(t)
	ctx := context.Background()

	t.Run("typed code matches case-insensitively", func(t *testing.T) {
		res, err := resolver.Check(ctx, picked.ID.String(), CheckRequest{Code: strings.ToLower(code)})
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, picked.Protocol, res.Protocol)
		assert.Equal(t, "picked_up", res.Status)
	})

	t.Run("wrong code does not match", func(t *testing.T) {
		res, err := resolver.Check(ctx, picked.ID.String(), CheckRequest{Code: "AAAAAA"})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("scanned receipt payload matches", func(t *testing.T) {
		raw, err := NewPayload(picked.Protocol, time.Now(), "", code).Encode()
		require.NoError(t, err)
		res, err := resolver.Check(ctx, picked.ID.String(), CheckRequest{Payload: raw})
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("payload from another record does not match", func(t *testing.T) {
		raw, err := NewPayload("20260101AA", time.Now(), "", code).Encode()
		require.NoError(t, err)
		res, err := resolver.Check(ctx, picked.ID.String(), CheckRequest{Payload: raw})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("arrival label payload carries no code", func(t *testing.T) {
		raw, err := NewPayload(picked.Protocol, time.Now(), "", "").Encode()
		require.NoError(t, err)
		_, err = resolver.Check(ctx, picked.ID.String(), CheckRequest{Payload: raw})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("malformed payload is rejected", func(t *testing.T) {
		_, err := resolver.Check(ctx, picked.ID.String(), CheckRequest{Payload: `{"p":"x","extra":1}`})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("pending record never matches", func(t *testing.T) {
		res, err := resolver.Check(ctx, pending.ID.String(), CheckRequest{Code: code})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, "pending", res.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := resolver.Check(ctx, uuid.NewString(), CheckRequest{Code: code})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestCheckWithoutCoderIsUnavailable(t *testing.T) {
	resolver := NewResolver(&stubCorrespondences{}, nil)
	_, err := resolver.Check(context.Background(), uuid.NewString(), CheckRequest{Code: "ABC234"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestHandleCheck(t *testing.T) {
	resolver, _, picked, code := checkFixture(t)
	router := chi.NewRouter()
	NewHandler(resolver, testLogger(), nil).Register(router)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/ver/"+picked.ID.String()+"/check", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"code":"` + code + `"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var res CheckResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.Valid)

	assert.Equal(t, http.StatusUnprocessableEntity, post(`{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"code":"`+strings.Repeat("A", maxCheckBody)+`"}`).Code)
}
