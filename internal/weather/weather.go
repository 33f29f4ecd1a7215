// Package weather reports the caller's city next to fixed sample conditions.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parking-lot/internal/logging"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	UnknownCity      = "Unknown"
	MockTemperature  = 25
	MockCondition    = "Sunny"
	MockHumidity     = 60
	defaultTimeout   = 5 * time.Second
	defaultMaxTries  = 2
	defaultRetryWait = 200 * time.Millisecond
)

type Report struct {
	City        string `json:"city"`
	Temperature int    `json:"temperature"`
	Condition   string `json:"condition"`
	Humidity    int    `json:"humidity"`
}

type Config struct {
	LookupURL string
	Token     string
	Timeout   time.Duration
	MaxTries  uint
	RetryWait time.Duration
}

type Service struct {
	cfg    Config
	client *http.Client
	tracer trace.Tracer
}

func New(cfg Config, tracer trace.Tracer) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	return &Service{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: tracer,
	}
}

// Current never fails: lookup errors fall back to UnknownCity.
func (s *Service) Current(ctx context.Context) Report {
	ctx, span := s.tracer.Start(ctx, "weather.current")
	defer span.End()

	city, err := s.lookupCity(ctx)
	if err != nil {
		span.RecordError(err)
		logging.Warnf(ctx, "location lookup failed, reporting %s: %v", UnknownCity, err)
		city = UnknownCity
	}
	span.SetAttributes(attribute.String("weather.city", city))

	return Report{
		City:        city,
		Temperature: MockTemperature,
		Condition:   MockCondition,
		Humidity:    MockHumidity,
	}
}

func (s *Service) lookupCity(ctx context.Context) (string, error) {
	if s.cfg.LookupURL == "" {
		return UnknownCity, nil
	}

	target, err := url.Parse(s.cfg.LookupURL)
	if err != nil {
		return "", fmt.Errorf("parse lookup url: %w", err)
	}
	if s.cfg.Token != "" {
		q := target.Query()
		q.Set("token", s.cfg.Token)
		target.RawQuery = q.Encode()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryWait
	bo.MaxInterval = 4 * s.cfg.RetryWait

	return backoff.Retry(ctx, func() (string, error) {
		return s.fetchCity(ctx, target.String())
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(s.cfg.MaxTries),
	)
}

func (s *Service) fetchCity(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("location lookup: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", backoff.Permanent(fmt.Errorf("location lookup: status %d", resp.StatusCode))
	}

	var body struct {
		City string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode location: %w", err))
	}

	if city := strings.TrimSpace(body.City); city != "" {
		return city, nil
	}
	return UnknownCity, nil
}
