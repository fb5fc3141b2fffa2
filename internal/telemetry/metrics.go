package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/neffi/trustgate"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Login flow metrics
	LoginsStartedTotal metric.Int64Counter
	LoginsTotal        metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter
	LogoutsTotal       metric.Int64Counter

	// Session metrics
	SessionsActive metric.Int64UpDownCounter

	// Upstream proxy metrics
	ProxyRequestsTotal metric.Int64Counter
	ProxyErrorsTotal   metric.Int64Counter
	ProxyDuration      metric.Float64Histogram

	// Screening metrics
	ScreeningSearchesTotal metric.Int64Counter
	ScreeningUploadsTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.LoginsStartedTotal, _ = meter.Int64Counter(
		"trustgate.auth.logins.started.total",
		metric.WithDescription("Total number of login flows started"),
		metric.WithUnit("{login}"),
	)

	m.LoginsTotal, _ = meter.Int64Counter(
		"trustgate.auth.logins.total",
		metric.WithDescription("Total number of logins completed successfully"),
		metric.WithUnit("{login}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"trustgate.auth.login_failures.total",
		metric.WithDescription("Total number of login flows that ended in an error redirect"),
		metric.WithUnit("{failure}"),
	)

	m.LogoutsTotal, _ = meter.Int64Counter(
		"trustgate.auth.logouts.total",
		metric.WithDescription("Total number of logout requests"),
		metric.WithUnit("{logout}"),
	)

	m.SessionsActive, _ = meter.Int64UpDownCounter(
		"trustgate.sessions.active",
		metric.WithDescription("Number of live server-side sessions"),
		metric.WithUnit("{session}"),
	)

	m.ProxyRequestsTotal, _ = meter.Int64Counter(
		"trustgate.proxy.requests.total",
		metric.WithDescription("Total number of requests forwarded to the application server"),
		metric.WithUnit("{request}"),
	)

	m.ProxyErrorsTotal, _ = meter.Int64Counter(
		"trustgate.proxy.errors.total",
		metric.WithDescription("Total number of forwarded requests that failed to reach the application server"),
		metric.WithUnit("{error}"),
	)

	m.ProxyDuration, _ = meter.Float64Histogram(
		"trustgate.proxy.duration",
		metric.WithDescription("Duration of forwarded requests"),
		metric.WithUnit("ms"),
	)

	m.ScreeningSearchesTotal, _ = meter.Int64Counter(
		"trustgate.screening.searches.total",
		metric.WithDescription("Total number of third-party restrictive-list searches"),
		metric.WithUnit("{search}"),
	)

	m.ScreeningUploadsTotal, _ = meter.Int64Counter(
		"trustgate.screening.uploads.total",
		metric.WithDescription("Total number of bulk validation files uploaded"),
		metric.WithUnit("{file}"),
	)

	return m
}
