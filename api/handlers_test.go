/*
handlers_test.go - Tests for the profit HTTP API

Tests for:
- saveProfit / getProfit round trip through the router
- Defaults, overwrite, not found
- Store failures map to 500 without leaking the cause
- CORS allow-list
- Health check
- planId matched exactly, startTime range checks, client message language
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-engine/profit"
	"github.com/warp/profit-engine/profit/store"
	"github.com/warp/profit-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

var testOrigins = []string{"https://lucrodb-production.up.railway.app"}

type testServer struct {
	router http.Handler
	store  profit.Store
	hook   *logtest.Hook
}

func newTestServer(t *testing.T, s profit.Store) *testServer {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	h := NewHandler(s, log)
	return &testServer{router: NewRouter(h, testOrigins), store: s, hook: hook}
}

func newSQLiteServer(t *testing.T) *testServer {
	s, err := sqlite.New(":memory:", sqlite.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return newTestServer(t, s)
}

func (ts *testServer) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	dec := json.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&v), "body: %s", rec.Body.String())
	return v
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (f failingStore) Upsert(context.Context, profit.UpsertInput) (profit.Record, error) {
	return profit.Record{}, f.err
}

func (f failingStore) FindByPlanID(context.Context, string) (profit.Record, error) {
	return profit.Record{}, f.err
}

func (f failingStore) Ping(context.Context) error { return f.err }

// =============================================================================
// SAVE / GET
// =============================================================================

func TestSaveThenGet_RoundTrip(t *testing.T) {
	ts := newSQLiteServer(t)

	// GIVEN: plan-A saved with profit 150.5
	rec := ts.do(t, http.MethodPost, "/api/saveProfit",
		`{"planId":"plan-A","profit":150.5,"startTime":1700000000000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	saved := decode[SaveProfitResponse](t, rec)
	assert.Equal(t, MsgSaved, saved.Message)
	assert.Equal(t, "plan-A", saved.Data.PlanID)
	assert.Equal(t, json.Number("150.5"), saved.Data.Profit)
	assert.Equal(t, int64(1700000000000), saved.Data.StartTime)

	// WHEN: Reading it back
	rec = ts.do(t, http.MethodGet, "/api/getProfit?planId=plan-A", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Profit is a bare JSON number and start time matches
	assert.JSONEq(t, `{"profit":150.5,"startTime":1700000000000}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestGet_NotFound(t *testing.T) {
	ts := newSQLiteServer(t)

	rec := ts.do(t, http.MethodGet, "/api/getProfit?planId=plan-missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Lucro não encontrado"}`, rec.Body.String())
	for _, e := range ts.hook.AllEntries() {
		assert.NotEqual(t, logrus.ErrorLevel, e.Level, "not found must not log an error")
	}
}

func TestSave_TwiceOverwrites(t *testing.T) {
	ts := newSQLiteServer(t)

	rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"plan-B","profit":10,"startTime":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"plan-B","profit":20.75,"startTime":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/getProfit?planId=plan-B", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"profit":20.75,"startTime":2}`, rec.Body.String())

	assert.Equal(t, 1, ts.store.(*sqlite.Store).Len())
}

func TestSave_Defaults(t *testing.T) {
	ts := newSQLiteServer(t)

	// GIVEN: Neither profit nor startTime supplied
	rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"plan-C"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: profit is 0 and startTime is now
	saved := decode[SaveProfitResponse](t, rec)
	assert.Equal(t, json.Number("0"), saved.Data.Profit)
	assert.Equal(t, testNow.UnixMilli(), saved.Data.StartTime)

	rec = ts.do(t, http.MethodGet, "/api/getProfit?planId=plan-C", "")
	assert.JSONEq(t, `{"profit":0,"startTime":1710072000000}`, rec.Body.String())
}

func TestSave_NullFieldsTakeDefaults(t *testing.T) {
	ts := newSQLiteServer(t)

	rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"plan-N","profit":null,"startTime":null}`)
	require.Equal(t, http.StatusOK, rec.Code)

	saved := decode[SaveProfitResponse](t, rec)
	assert.Equal(t, json.Number("0"), saved.Data.Profit)
	assert.Equal(t, testNow.UnixMilli(), saved.Data.StartTime)
}

func TestSave_QuotedNumbersAccepted(t *testing.T) {
	ts := newSQLiteServer(t)

	rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"plan-Q","profit":"-3.5","startTime":"1700000000000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/getProfit?planId=plan-Q", "")
	assert.JSONEq(t, `{"profit":-3.5,"startTime":1700000000000}`, rec.Body.String())
}

func TestSave_MissingPlanID(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	for _, body := range []string{`{"profit":1}`, `{"planId":"  ","profit":1}`} {
		rec := ts.do(t, http.MethodPost, "/api/saveProfit", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, MsgPlanIDNeeded, resp.Error)
	}
	assert.Equal(t, 0, ts.store.(*store.Memory).Len())
}

func TestSave_MalformedBody(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	for _, body := range []string{`{`, `{"planId":"x","profit":"abc"}`, `{"planId":7}`} {
		rec := ts.do(t, http.MethodPost, "/api/saveProfit", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, MsgInvalidBody, resp.Error)
	}
}

func TestSave_PlanIDKeptExactly(t *testing.T) {
	ts := newSQLiteServer(t)

	// GIVEN: "plan-A" and " plan-A " saved with different values
	rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"plan-A","profit":1,"startTime":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":" plan-A ","profit":2,"startTime":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The response echoes the id as sent and both records exist
	saved := decode[SaveProfitResponse](t, rec)
	assert.Equal(t, " plan-A ", saved.Data.PlanID)

	rec = ts.do(t, http.MethodGet, "/api/getProfit?planId=plan-A", "")
	assert.JSONEq(t, `{"profit":1,"startTime":1}`, rec.Body.String())
	rec = ts.do(t, http.MethodGet, "/api/getProfit?planId=%20plan-A%20", "")
	assert.JSONEq(t, `{"profit":2,"startTime":2}`, rec.Body.String())

	assert.Equal(t, 2, ts.store.(*sqlite.Store).Len())
}

func TestSave_StartTimeOutOfRange(t *testing.T) {
	ts := newSQLiteServer(t)

	for _, st := range []string{"1e30", "-1e30", "9223372036854775808"} {
		rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"p","profit":1,"startTime":`+st+`}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, st)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "startTime fora do intervalo permitido", resp.Error)
	}

	rec := ts.do(t, http.MethodGet, "/api/getProfit?planId=p", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "rejected saves must not persist")
}

func TestSave_StartTimeAtInt64Bounds(t *testing.T) {
	ts := newSQLiteServer(t)

	rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"p","startTime":9223372036854775807}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[SaveProfitResponse](t, rec)
	assert.Equal(t, int64(9223372036854775807), saved.Data.StartTime)

	rec = ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"p","startTime":1700000000000.9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	saved = decode[SaveProfitResponse](t, rec)
	assert.Equal(t, int64(1700000000000), saved.Data.StartTime)
}

func TestClientMessagesArePortuguese(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{`)
	assert.Equal(t, "Corpo da requisição inválido", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/saveProfit", `{"profit":1}`)
	assert.Equal(t, "planId é obrigatório", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/api/getProfit", "")
	assert.Equal(t, "planId é obrigatório", decode[ErrorResponse](t, rec).Error)
}

func TestSave_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	body := `{"planId":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec := ts.do(t, http.MethodPost, "/api/saveProfit", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGet_MissingPlanID(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	rec := ts.do(t, http.MethodGet, "/api/getProfit", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// STORE FAILURES
// =============================================================================

func TestSave_StoreFailure(t *testing.T) {
	ts := newTestServer(t, failingStore{err: errors.New("disk I/O error: secret path /var/db")})

	rec := ts.do(t, http.MethodPost, "/api/saveProfit", `{"planId":"plan-A","profit":1}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Erro ao salvar os dados no servidor"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")

	entry := findEntry(ts.hook, "failed to save profit")
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "plan-A", entry.Data["plan_id"])
	assert.ErrorContains(t, entry.Data[logrus.ErrorKey].(error), "disk I/O error")
}

func TestGet_StoreFailure(t *testing.T) {
	ts := newTestServer(t, failingStore{err: errors.New("connection reset")})

	rec := ts.do(t, http.MethodGet, "/api/getProfit?planId=plan-A", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Erro ao buscar os dados no servidor"}`, rec.Body.String())
	require.NotNil(t, findEntry(ts.hook, "failed to get profit"))
}

func findEntry(hook *logtest.Hook, msg string) *logrus.Entry {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return e
		}
	}
	return nil
}

// =============================================================================
// HEALTH / CORS
// =============================================================================

func TestHealth(t *testing.T) {
	ts := newSQLiteServer(t)

	rec := ts.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MsgHealthy, rec.Body.String())
}

func TestHealth_DatabaseDown(t *testing.T) {
	ts := newTestServer(t, failingStore{err: errors.New("closed")})

	rec := ts.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	rec := ts.do(t, http.MethodGet, "/", "", "Origin", testOrigins[0])
	assert.Equal(t, testOrigins[0], rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	rec := ts.do(t, http.MethodGet, "/", "", "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	rec := ts.do(t, http.MethodOptions, "/api/saveProfit", "",
		"Origin", testOrigins[0],
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "Content-Type")
	assert.Equal(t, testOrigins[0], rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRequestsAreLogged(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	ts.do(t, http.MethodGet, "/api/getProfit?planId=nope", "")

	entry := findEntry(ts.hook, "request")
	require.NotNil(t, entry)
	assert.Equal(t, "/api/getProfit", entry.Data["path"])
	assert.Equal(t, http.StatusNotFound, entry.Data["status"])
	assert.NotEmpty(t, entry.Data["request_id"])
}
