package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aviary/internal/log"
	"aviary/internal/observability"
	"aviary/internal/services"
	"aviary/internal/storage/memory"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	logger := log.New(log.Config{Output: io.Discard})
	store := memory.New()
	n := 0
	svc := services.New(services.Deps{
		Store:              store,
		CriticalWindowDays: 30,
		DefaultCurrency:    "EUR",
		Clock:              clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Logger:             logger,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		},
	})
	opts := Options{
		Addr:               ":0",
		Services:           svc,
		Ready:              store.Ping,
		Metrics:            observability.NewMetricsForTesting(),
		Gatherer:           prometheus.NewRegistry(),
		Logger:             logger,
		RateLimitPerMinute: 1000,
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{t: t, handler: srv.Handler}
}

func (ts *testServer) do(method, target string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(ts.t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "203.0.113.10:4000"
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[ErrorBody](t, rec).Detail
}

func TestHealthReadyAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := ts.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	down := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("database is locked") }
	})
	rec := down.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", detail(t, rec))
}

func TestBirdLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/birds", map[string]any{
		"name": "Rio", "species": "Cockatiel", "gender": "male", "birth_date": "2023-04-02",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bird := decode[map[string]any](t, rec)
	assert.Equal(t, "id-001", bird["id"])
	assert.Equal(t, "active", bird["status"])
	assert.Equal(t, "2023-04-02", bird["birth_date"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	ts.do(http.MethodPost, "/api/birds", map[string]any{"name": "Kiwi", "species": "Budgerigar", "gender": "female"})

	rec = ts.do(http.MethodGet, "/api/birds?species=cockatiel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Rio", list[0]["name"])

	rec = ts.do(http.MethodGet, "/api/search?q=kiw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = ts.do(http.MethodPut, "/api/birds/id-001", map[string]any{
		"name": "Rio II", "species": "Cockatiel", "gender": "male", "status": "sold",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sold", decode[map[string]any](t, rec)["status"])

	rec = ts.do(http.MethodDelete, "/api/birds/id-001", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/birds/id-001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, detail(t, rec), "not found")
}

func TestPairsAndClutchesResolveReferences(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/birds", map[string]any{"name": "Rio", "species": "Cockatiel", "gender": "male"})
	ts.do(http.MethodPost, "/api/birds", map[string]any{"name": "Kiwi", "species": "Cockatiel", "gender": "female"})
	rec := ts.do(http.MethodPost, "/api/breeding-pairs", map[string]any{"male_bird_id": "id-001", "female_bird_id": "id-002"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/api/clutches", map[string]any{"breeding_pair_id": "id-003", "egg_laying_date": "2025-01-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, decode[map[string]any](t, rec), "breeding_pair")

	rec = ts.do(http.MethodGet, "/api/breeding-pairs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pairs := decode[[]map[string]any](t, rec)
	require.Len(t, pairs, 1)
	assert.Equal(t, "id-001", pairs[0]["male_bird_id"])
	assert.Equal(t, "Rio", pairs[0]["male_bird"].(map[string]any)["name"])
	assert.Equal(t, "Kiwi", pairs[0]["female_bird"].(map[string]any)["name"])

	rec = ts.do(http.MethodGet, "/api/breeding-pairs/id-003", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kiwi", decode[map[string]any](t, rec)["female_bird"].(map[string]any)["name"])

	rec = ts.do(http.MethodGet, "/api/clutches/id-004", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	clutch := decode[map[string]any](t, rec)
	assert.Equal(t, "2025-01-19", clutch["expected_hatch_date"])
	pair := clutch["breeding_pair"].(map[string]any)
	assert.Equal(t, "id-003", pair["id"])
	assert.Equal(t, "Rio", pair["male_bird"].(map[string]any)["name"])

	rec = ts.do(http.MethodGet, "/api/clutches?breeding_pair_id=id-003", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	clutches := decode[[]map[string]any](t, rec)
	require.Len(t, clutches, 1)
	assert.NotNil(t, clutches[0]["breeding_pair"])

	rec = ts.do(http.MethodGet, "/api/clutches/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/birds", map[string]any{"name": "Rio", "species": "Cockatiel", "gender": "male"})
	ts.do(http.MethodPost, "/api/birds", map[string]any{"name": "Sky", "species": "Cockatiel", "gender": "male"})

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"empty name", http.MethodPost, "/api/birds", map[string]any{"species": "Cockatiel"}, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, "/api/birds", `{"name":"A","species":"B","birth_date":"2025-13-01"}`, http.StatusUnprocessableEntity},
		{"malformed json", http.MethodPost, "/api/birds", `{"name":`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/birds", "", http.StatusBadRequest},
		{"same gender pair", http.MethodPost, "/api/breeding-pairs", map[string]any{"male_bird_id": "id-001", "female_bird_id": "id-002"}, http.StatusBadRequest},
		{"pair with missing bird", http.MethodPost, "/api/breeding-pairs", map[string]any{"male_bird_id": "id-001", "female_bird_id": "nope"}, http.StatusNotFound},
		{"bad filter", http.MethodGet, "/api/birds?gender=robot", nil, http.StatusUnprocessableEntity},
		{"bad range", http.MethodGet, "/api/reports/financial?from=yesterday", nil, http.StatusBadRequest},
		{"inverted range", http.MethodGet, "/api/reports/financial?from=2025-03-31&to=2025-03-01", nil, http.StatusUnprocessableEntity},
		{"negative amount", http.MethodPost, "/api/transactions", map[string]any{"type": "sale", "amount": "-5"}, http.StatusUnprocessableEntity},
		{"unknown route", http.MethodGet, "/api/nests", nil, http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/api/birds", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, detail(t, rec))
		})
	}
}

func TestMethodNotAllowedListsAllowedMethods(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		target string
		allow  string
	}{
		{"/api/birds", "GET, POST"},
		{"/api/birds/id-001", "GET, PUT, DELETE"},
		{"/api/dashboard", "GET"},
		{"/healthz", "GET"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := ts.do(http.MethodPatch, tt.target, nil)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, rec.Body.String())
			assert.Equal(t, tt.allow, rec.Header().Get("Allow"))
			assert.Equal(t, "method not allowed", detail(t, rec))
		})
	}

	rec := ts.do(http.MethodPatch, "/api/nests", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHatchEstimate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/hatch-estimate?laying_date=2025-01-01&species=Cockatiel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	est := decode[services.HatchEstimate](t, rec)
	assert.Equal(t, "2025-01-19", est.ExpectedHatchDate.String())
	assert.Equal(t, 18, est.IncubationDays)
	assert.True(t, est.KnownSpecies)

	rec = ts.do(http.MethodGet, "/api/hatch-estimate?laying_date=2025-01-01&species=Dodo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-01-22", decode[services.HatchEstimate](t, rec).ExpectedHatchDate.String())

	rec = ts.do(http.MethodGet, "/api/hatch-estimate?species=Cockatiel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitoringReturnsAlerts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/incubators", map[string]any{
		"name": "Cabinet A", "temperature_range": "37.2-37.8°C", "humidity_range": "45-55%",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/daily-monitoring", map[string]any{
		"incubator_id": "id-001", "temperature": 38.4, "humidity": 50,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[services.MonitoringResult](t, rec)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "high", string(res.Alerts[0].Level))
	assert.Equal(t, "2025-06-01", res.Entry.Date.String())

	rec = ts.do(http.MethodGet, "/api/daily-monitoring?incubator_id=id-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = ts.do(http.MethodGet, "/api/daily-monitoring?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/daily-monitoring", map[string]any{"incubator_id": "id-001"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/daily-monitoring/"+res.Entry.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFinancialReport(t *testing.T) {
	ts := newTestServer(t)
	for _, tx := range []map[string]any{
		{"type": "sale", "amount": 500, "date": "2025-03-01", "category": "birds"},
		{"type": "expense", "amount": "50", "date": "2025-03-05", "category": "feed"},
		{"type": "purchase", "amount": 200, "date": "2025-02-01"},
	} {
		rec := ts.do(http.MethodPost, "/api/transactions", tx)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := ts.do(http.MethodGet, "/api/reports/financial?from=2025-03-01&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[services.FinancialReport](t, rec)
	assert.Equal(t, "EUR", report.Summary.Currency)
	assert.Equal(t, 1, report.Summary.Sales.Count)
	assert.Equal(t, int64(50000), report.Summary.Sales.Total.Cents)
	assert.Equal(t, 0, report.Summary.Purchases.Count)
	assert.Equal(t, int64(45000), report.Summary.NetBalance.Cents)

	rec = ts.do(http.MethodGet, "/api/transactions?from=2025-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)
}

func TestViews(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/dashboard", "/api/notifications", "/api/reports/breeding"} {
		rec := ts.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, json.Valid(rec.Body.Bytes()), path)
	}

	rec := ts.do(http.MethodGet, "/api/breeding-pairs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodPost, "/api/incubators", map[string]any{"name": fmt.Sprintf("Cabinet %d", i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := ts.do(http.MethodPost, "/api/incubators", map[string]any{"name": "Cabinet 3"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, detail(t, rec))

	rec = ts.do(http.MethodGet, "/api/incubators", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.CORSAllowedOrigins = []string{"https://aviary.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/birds", nil)
	req.Header.Set("Origin", "https://aviary.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://aviary.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = ts.do(http.MethodGet, "/api/birds", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk full")))
	assert.Equal(t, http.StatusBadRequest, statusFor(badRequest("x")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(fmt.Errorf("wrap: %w", services.ErrValidation)))
}
