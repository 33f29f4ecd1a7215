package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parking-lot/internal/events"
	"parking-lot/internal/logging"
	"parking-lot/internal/parking"
	"parking-lot/internal/telemetry"
	"parking-lot/internal/weather"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeAssistant struct{ questions []string }

func (f *fakeAssistant) Reply(_ context.Context, q string) string {
	f.questions = append(f.questions, q)
	if q == "" {
		return "Ask a parking-related question."
	}
	return "Park in the lowest free slot."
}

type fakeWeather struct{}

func (fakeWeather) Current(context.Context) weather.Report {
	return weather.Report{City: "Pune", Temperature: 25, Condition: "Sunny", Humidity: 60}
}

type testServer struct {
	handler   http.Handler
	lot       *parking.InstrumentedParkingLot
	assistant *fakeAssistant
}

func newTestServer(t *testing.T, capacity int, opts Options) *testServer {
	t.Helper()
	logging.Init("parking-test", "error", io.Discard)

	pl, err := parking.NewParkingLot(capacity, 0.5, parking.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	tp := telemetry.NewWithProviders("parking-test",
		sdktrace.NewTracerProvider(),
		sdkmetric.NewMeterProvider(),
	)
	lot, err := parking.NewInstrumentedParkingLot(pl, tp, events.Nop{})
	require.NoError(t, err)

	if opts.ServiceName == "" {
		opts.ServiceName = "parking-test"
	}
	assistant := &fakeAssistant{}
	srv, err := NewServer(opts, lot, assistant, fakeWeather{})
	require.NoError(t, err)

	return &testServer{handler: srv.Handler(), lot: lot, assistant: assistant}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	rec := ts.raw(method, path, body, nil)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (ts *testServer) raw(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, 2, Options{})

	rec := ts.raw(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "parking-test", body.Service)
	require.NotNil(t, body.Meta)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body.Meta.RequestID)
}

func TestSingleSlotWalkthrough(t *testing.T) {
	ts := newTestServer(t, 1, Options{})

	code, body := ts.do(t, http.MethodPost, "/park", `{"plate":"A"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["allocated_slot"])
	assert.Equal(t, float64(0), body["queue_len"])
	assert.Equal(t, "A", body["plate"])

	code, body = ts.do(t, http.MethodPost, "/park", `{"plate":"B"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["allocated_slot"])
	assert.Equal(t, float64(1), body["queue_len"])

	code, body = ts.do(t, http.MethodPost, "/remove", `{"slot_no":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["freed"])
	assert.Equal(t, "A", body["plate"])
	assert.Equal(t, float64(1), body["duration_min"])
	assert.Equal(t, 0.5, body["fee"])
	assert.Equal(t, float64(1), body["assigned_next"])
	assert.Equal(t, "B", body["next_plate"])

	code, body = ts.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{map[string]any{"slot": float64(1), "occupied": true, "plate": "B"}}, body["slots"])
	assert.Empty(t, body["queue"])
	assert.Len(t, body["undo"], 4)
	assert.Empty(t, body["redo"])

	code, body = ts.do(t, http.MethodPost, "/undo", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"undone": "park", "slot": float64(1)}, body)

	code, body = ts.do(t, http.MethodPost, "/undo", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"undone": "remove", "slot": float64(1)}, body)

	// B left the queue when it was handed slot 1, so its enqueue can't be reverted.
	code, body = ts.do(t, http.MethodPost, "/undo", "")
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "Could not undo action", body["msg"])

	code, body = ts.do(t, http.MethodPost, "/redo", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"redone": "remove", "slot": float64(1)}, body)

	code, body = ts.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{map[string]any{"slot": float64(1), "occupied": false, "plate": ""}}, body["slots"])
}

func TestParkDuplicate(t *testing.T) {
	ts := newTestServer(t, 1, Options{})

	for _, plate := range []string{"A", "B"} {
		code, _ := ts.do(t, http.MethodPost, "/park", `{"plate":"`+plate+`"}`)
		require.Equal(t, http.StatusOK, code)
	}

	for _, plate := range []string{"A", " B "} {
		code, body := ts.do(t, http.MethodPost, "/park", `{"plate":"`+plate+`"}`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "duplicate", body["error"])
		assert.Contains(t, body["message"], strings.TrimSpace(plate))
	}
}

func TestParkWithoutPlateGeneratesOne(t *testing.T) {
	ts := newTestServer(t, 2, Options{})

	for _, payload := range []string{"", `{}`, `{"plate":"   "}`} {
		ts := newTestServer(t, 2, Options{})
		code, body := ts.do(t, http.MethodPost, "/park", payload)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, ts.lot.DefaultPlate(), body["plate"])
		assert.Regexp(t, `^CAR\d{1,4}$`, body["plate"])
	}

	code, body := ts.do(t, http.MethodPost, "/park", `{"plate":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestRemoveValidation(t *testing.T) {
	ts := newTestServer(t, 2, Options{})
	code, _ := ts.do(t, http.MethodPost, "/park", `{"plate":"A"}`)
	require.Equal(t, http.StatusOK, code)

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"empty body", "", "slot_no required"},
		{"missing", `{}`, "slot_no required"},
		{"null", `{"slot_no":null}`, "slot_no required"},
		{"string", `{"slot_no":"1"}`, "invalid slot_no"},
		{"fraction", `{"slot_no":1.5}`, "invalid slot_no"},
		{"zero", `{"slot_no":0}`, "invalid slot_no"},
		{"negative", `{"slot_no":-3}`, "invalid slot_no"},
		{"unknown slot", `{"slot_no":99}`, "not_found"},
		{"free slot", `{"slot_no":2}`, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := ts.do(t, http.MethodPost, "/remove", tt.payload)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}

	status := ts.lot.ParkingLot.GetStatus()
	assert.Equal(t, 1, status.Occupied)
}

func TestHistoryEmpty(t *testing.T) {
	ts := newTestServer(t, 2, Options{})

	code, body := ts.do(t, http.MethodPost, "/undo", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"msg": "Nothing to undo"}, body)

	code, body = ts.do(t, http.MethodPost, "/redo", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"msg": "Nothing to redo"}, body)
}

func TestUndoEnqueueReportsPlate(t *testing.T) {
	ts := newTestServer(t, 1, Options{})
	ts.do(t, http.MethodPost, "/park", `{"plate":"A"}`)
	ts.do(t, http.MethodPost, "/park", `{"plate":"B"}`)

	code, body := ts.do(t, http.MethodPost, "/undo", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"undone": "enqueue", "plate": "B"}, body)

	code, body = ts.do(t, http.MethodPost, "/redo", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"redone": "enqueue", "plate": "B"}, body)

	_, body = ts.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, []any{"B"}, body["queue"])
}

func TestStatusListsHistory(t *testing.T) {
	ts := newTestServer(t, 3, Options{})
	ts.do(t, http.MethodPost, "/park", `{"plate":"A"}`)
	ts.do(t, http.MethodPost, "/park", `{"plate":"B"}`)
	ts.do(t, http.MethodPost, "/undo", "")

	code, body := ts.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, float64(3), body["capacity"])
	assert.Equal(t, float64(1), body["occupied"])
	assert.Equal(t, float64(2), body["available"])
	assert.Len(t, body["slots"], 3)
	assert.Equal(t, []any{map[string]any{"kind": "park", "slot_no": float64(1), "plate": "A"}}, body["undo"])
	assert.Equal(t, []any{map[string]any{"kind": "park", "slot_no": float64(2), "plate": "B"}}, body["redo"])
}

func TestFindByPlate(t *testing.T) {
	ts := newTestServer(t, 1, Options{})
	ts.do(t, http.MethodPost, "/park", `{"plate":"A"}`)
	ts.do(t, http.MethodPost, "/park", `{"plate":"B"}`)

	code, body := ts.do(t, http.MethodGet, "/find/A", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["slot"])

	code, body = ts.do(t, http.MethodGet, "/find/B", "")
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["slot"])
	assert.Equal(t, float64(1), body["queue_position"])

	code, body = ts.do(t, http.MethodGet, "/find/ZZZ", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["error"])
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, 1, Options{})

	code, body := ts.do(t, http.MethodPost, "/api/chat", `{"q":"where do I park?"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Park in the lowest free slot.", body["reply"])

	code, body = ts.do(t, http.MethodPost, "/api/chat", `not json`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ask a parking-related question.", body["reply"])

	assert.Equal(t, []string{"where do I park?", ""}, ts.assistant.questions)
}

func TestWeather(t *testing.T) {
	ts := newTestServer(t, 1, Options{})

	code, body := ts.do(t, http.MethodGet, "/weather", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{
		"city":        "Pune",
		"temperature": float64(25),
		"condition":   "Sunny",
		"humidity":    float64(60),
	}, body)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, 4, Options{})
	ts.do(t, http.MethodPost, "/park", `{"plate":"A"}`)

	rec := ts.raw(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "parking_slots_total 4")
	assert.Contains(t, rec.Body.String(), "parking_slots_occupied 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRateLimitPerClient(t *testing.T) {
	ts := newTestServer(t, 1, Options{RateLimitRPS: 0.01, RateLimitBurst: 1})
	first := http.Header{"X-Forwarded-For": {"10.0.0.1"}}
	second := http.Header{"X-Forwarded-For": {"10.0.0.2, 172.16.0.1"}}

	assert.Equal(t, http.StatusOK, ts.raw(http.MethodGet, "/status", "", first).Code)

	rec := ts.raw(http.MethodGet, "/status", "", first)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, ts.raw(http.MethodGet, "/status", "", second).Code)

	// health and metrics stay reachable for probes.
	assert.Equal(t, http.StatusOK, ts.raw(http.MethodGet, "/health", "", first).Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, 1, Options{})

	rec := ts.raw(http.MethodOptions, "/park", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	logging.Init("parking-test", "error", io.Discard)
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"internal"`)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, 1, Options{})
	assert.Equal(t, http.StatusNotFound, ts.raw(http.MethodGet, "/nope", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.raw(http.MethodGet, "/park", "", nil).Code)
}

func TestRequestLogCarriesTraceContext(t *testing.T) {
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	ts := newTestServer(t, 1, Options{})

	var buf bytes.Buffer
	logging.Init("parking-test", "info", &buf)

	rec := ts.raw(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Meta)
	require.NotEmpty(t, body.Meta.TraceID)

	line, _, _ := strings.Cut(buf.String(), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry), buf.String())
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, body.Meta.TraceID, entry["trace_id"])
	assert.NotEmpty(t, entry["span_id"])
	assert.Equal(t, body.Meta.RequestID, entry["request_id"])
}
