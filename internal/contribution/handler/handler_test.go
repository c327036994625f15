package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpool/internal/contribution/metrics"
	"fundpool/internal/contribution/models"
	"fundpool/internal/contribution/service"
	"fundpool/internal/contribution/store/due"
	"fundpool/internal/contribution/store/member"
	"fundpool/internal/idempotency"
	ledger "fundpool/internal/ledger/service"
	ledgerstore "fundpool/internal/ledger/store"
	id "fundpool/pkg/domain"
	"fundpool/pkg/requestcontext"
	"fundpool/pkg/testutil"
)

var (
	testNow = time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

	handlerMetrics = metrics.New()
)

type env struct {
	router   chi.Router
	svc      *service.Service
	roster   *member.MemoryStore
	fundID   id.FundID
	memberID id.UserID
	admin    id.UserID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dues := due.NewMemory()
	roster := member.NewMemory()
	ledgerSvc, err := ledger.New(ledgerstore.NewMemory())
	require.NoError(t, err)
	svc, err := service.New(dues, roster, ledgerSvc)
	require.NoError(t, err)
	guard, err := idempotency.NewGuard(idempotency.NewMemory())
	require.NoError(t, err)

	h := New(svc, guard, slog.New(slog.NewTextHandler(io.Discard, nil)), handlerMetrics)
	router := chi.NewRouter()
	h.Register(router)

	e := &env{
		router:   router,
		svc:      svc,
		roster:   roster,
		fundID:   id.NewFundID(),
		memberID: id.NewUserID(),
		admin:    id.NewUserID(),
	}
	require.NoError(t, roster.Upsert(testutil.Context(t, testNow), models.Member{
		FundID:                    e.fundID,
		UserID:                    e.memberID,
		MonthlyContributionAmount: decimal.RequireFromString("500.00"),
		Active:                    true,
		JoinedAt:                  testNow,
	}))
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	ctx := testutil.ContextAs(t, testNow, e.memberID, admin)
	if admin {
		ctx = requestcontext.WithUserID(ctx, e.admin)
	}
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) generateDue(t *testing.T) map[string]any {
	t.Helper()
	rec := e.do(t, http.MethodPost,
		fmt.Sprintf("/funds/%s/cycles/202602/dues", e.fundID), nil, nil, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodGet,
		fmt.Sprintf("/funds/%s/cycles/202602/dues", e.fundID), nil, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var dues []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dues))
	require.Len(t, dues, 1)
	return dues[0]
}

func paymentHeaders(key string, version int64) map[string]string {
	return map[string]string{
		"Idempotency-Key": key,
		"If-Match":        strconv.FormatInt(version, 10),
	}
}

func TestHandleGenerateDues(t *testing.T) {
	t.Run("requires the fund admin role", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, http.MethodPost,
			fmt.Sprintf("/funds/%s/cycles/202602/dues", e.fundID), nil, nil, false)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no members maps to conflict", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, http.MethodPost,
			fmt.Sprintf("/funds/%s/cycles/202602/dues", id.NewFundID()), nil, nil, true)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rerun returns 200 with zero generated", func(t *testing.T) {
		e := newEnv(t)
		e.generateDue(t)
		rec := e.do(t, http.MethodPost,
			fmt.Sprintf("/funds/%s/cycles/202602/dues", e.fundID), nil, nil, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		var result map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, float64(0), result["generated"])
		assert.Equal(t, float64(1), result["skipped"])
	})

	t.Run("malformed month is rejected", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, http.MethodPost,
			fmt.Sprintf("/funds/%s/cycles/2026XX/dues", e.fundID), nil, nil, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleRecordPayment(t *testing.T) {
	body := map[string]string{"amount": "200.00"}

	t.Run("missing precondition headers are rejected before domain logic", func(t *testing.T) {
		e := newEnv(t)
		d := e.generateDue(t)
		path := fmt.Sprintf("/funds/%s/dues/%s/payments", e.fundID, d["id"])

		rec := e.do(t, http.MethodPost, path, body, nil, false)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = e.do(t, http.MethodPost, path, body, map[string]string{"Idempotency-Key": "k1"}, false)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = e.do(t, http.MethodPost, path, body,
			map[string]string{"Idempotency-Key": "k1", "If-Match": "zero"}, false)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("records and replays identically", func(t *testing.T) {
		e := newEnv(t)
		d := e.generateDue(t)
		path := fmt.Sprintf("/funds/%s/dues/%s/payments", e.fundID, d["id"])

		rec := e.do(t, http.MethodPost, path, body, paymentHeaders("k1", 1), false)
		require.Equal(t, http.StatusOK, rec.Code)
		first := rec.Body.String()

		rec = e.do(t, http.MethodPost, path, body, paymentHeaders("k1", 1), false)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, first, rec.Body.String())

		var result map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "200.00", result["amount_applied"])
		assert.Equal(t, "300.00", result["remaining_balance"])
		assert.Equal(t, "partial", result["status"])
	})

	t.Run("stale If-Match maps to 412", func(t *testing.T) {
		e := newEnv(t)
		d := e.generateDue(t)
		path := fmt.Sprintf("/funds/%s/dues/%s/payments", e.fundID, d["id"])

		rec := e.do(t, http.MethodPost, path, body, paymentHeaders("k1", 1), false)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodPost, path, body, paymentHeaders("k2", 1), false)
		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	})

	t.Run("paying a settled due maps to 409", func(t *testing.T) {
		e := newEnv(t)
		d := e.generateDue(t)
		path := fmt.Sprintf("/funds/%s/dues/%s/payments", e.fundID, d["id"])

		rec := e.do(t, http.MethodPost, path, map[string]string{"amount": "500.00"},
			paymentHeaders("k1", 1), false)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodPost, path, body, paymentHeaders("k2", 2), false)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid amount is rejected", func(t *testing.T) {
		e := newEnv(t)
		d := e.generateDue(t)
		path := fmt.Sprintf("/funds/%s/dues/%s/payments", e.fundID, d["id"])

		rec := e.do(t, http.MethodPost, path, map[string]string{"amount": "-5.00"},
			paymentHeaders("k1", 1), false)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = e.do(t, http.MethodPost, path, map[string]string{"amount": "5.005"},
			paymentHeaders("k2", 1), false)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown due maps to 404", func(t *testing.T) {
		e := newEnv(t)
		path := fmt.Sprintf("/funds/%s/dues/%s/payments", e.fundID, id.NewDueID())
		rec := e.do(t, http.MethodPost, path, body, paymentHeaders("k1", 1), false)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleGetDue(t *testing.T) {
	e := newEnv(t)
	d := e.generateDue(t)

	rec := e.do(t, http.MethodGet,
		fmt.Sprintf("/funds/%s/dues/%s", e.fundID, d["id"]), nil, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("ETag"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "500.00", got["amount_due"])
	assert.Equal(t, "pending", got["status"])
}
