package util

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// retryLogger adapts slog to the retryablehttp leveled logger interface.
//
// Intermediate failures are expected while retrying, so ERROR is demoted to
// WARN, and the DEBUG line that announces each retry is promoted to INFO.
type retryLogger struct {
	inner *slog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, keysAndValues...)
}

type ClientOptions struct {
	// name recorded on log lines and spans, eg "hiveai"
	Service string
	// zero disables retries entirely
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// overall deadline for a request, including retries
	Timeout time.Duration
	Logger  *slog.Logger
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Service:      "http",
		RetryMax:     3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 10 * time.Second,
		Timeout:      20 * time.Second,
	}
}

// Generates an HTTP client with decent general-purpose defaults around
// timeouts and retries, for calls to external labeling and moderation APIs.
func RobustHTTPClient() *http.Client {
	return NewHTTPClient(DefaultClientOptions())
}

// The returned client has the stdlib http.Client interface, but has
// Hashicorp retryablehttp logic internally, and records OpenTelemetry
// client spans.
//
// It retries on connection errors, 5xx status (except 501), and 429 backoff
// (respecting 'Retry-After'). It does not start from http.DefaultClient.
func NewHTTPClient(opts ClientOptions) *http.Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Service == "" {
		opts.Service = "http"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = retryablehttp.LeveledLogger(retryLogger{logger.With("system", opts.Service)})

	client := retryClient.StandardClient()
	client.Transport = otelhttp.NewTransport(client.Transport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return opts.Service + " " + r.Method
		}),
	)
	client.Timeout = opts.Timeout
	return client
}
