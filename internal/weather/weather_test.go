package weather

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"parking-lot/internal/logging"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestService(lookupURL, token string) *Service {
	return New(Config{
		LookupURL: lookupURL,
		Token:     token,
		RetryWait: 10 * time.Millisecond,
	}, noop.NewTracerProvider().Tracer("test"))
}

func TestCurrentReportsCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		fmt.Fprint(w, `{"ip":"1.2.3.4","city":"Pune","country":"IN"}`)
	}))
	defer srv.Close()

	report := newTestService(srv.URL+"/json", "secret").Current(context.Background())

	assert.Equal(t, Report{City: "Pune", Temperature: 25, Condition: "Sunny", Humidity: 60}, report)
}

func TestCurrentRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"city":"Mumbai"}`)
	}))
	defer srv.Close()

	report := newTestService(srv.URL, "").Current(context.Background())

	assert.Equal(t, "Mumbai", report.City)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCurrentFallsBackToUnknown(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"forbidden", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "not json") }},
		{"no city", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"ip":"1.2.3.4"}`) }},
		{"always failing", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			report := newTestService(srv.URL, "").Current(context.Background())

			assert.Equal(t, UnknownCity, report.City)
			assert.Equal(t, MockTemperature, report.Temperature)
			assert.Equal(t, MockCondition, report.Condition)
			assert.Equal(t, MockHumidity, report.Humidity)
		})
	}
}

func TestCurrentWithoutLookupURL(t *testing.T) {
	report := newTestService("", "").Current(context.Background())
	assert.Equal(t, UnknownCity, report.City)
}

func TestCurrentLogsLookupFailure(t *testing.T) {
	var buf bytes.Buffer
	logging.Init("weather-test", "warn", &buf)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	report := newTestService(srv.URL, "").Current(context.Background())

	assert.Equal(t, UnknownCity, report.City)
	assert.Contains(t, buf.String(), `"severity":"warning"`)
	assert.Contains(t, buf.String(), "location lookup failed, reporting Unknown")
	assert.Contains(t, buf.String(), "status 403")
}
