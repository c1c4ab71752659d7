package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tournetwork/storefront/internal/cache"
)

const maxResponseBytes = 4 << 20

// ErrNotConfigured is returned when the client has no base URL or transport.
var ErrNotConfigured = errors.New("backend: client not configured")

// Doer executes outbound requests; resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// StatusError reports a non-success answer from the booking API, either as an
// HTTP status or as the "code" field of the response envelope.
type StatusError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s returned %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("backend: %s returned %d", e.Endpoint, e.Status)
}

// IsStatus reports whether err is a StatusError carrying status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// StatusOf extracts the status of a StatusError, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Client talks to the remote booking API. Package records and custom forms
// are cached; everything else is fetched on every call.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    Doer
	Cache   *cache.JSON
	Logger  zerolog.Logger
}

// NewTransportClient returns an http.Client whose transport emits client spans.
func NewTransportClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	if c == nil || c.HTTP == nil || strings.TrimSpace(c.BaseURL) == "" {
		return ErrNotConfigured
	}
	ctx, span := otel.Tracer("backend.Client").Start(ctx, method+" "+endpointName(endpoint))
	defer span.End()
	span.SetAttributes(attribute.String("backend.endpoint", endpoint))

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+endpoint, reader)
	if err != nil {
		return fmt.Errorf("backend: build %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "storefront-api/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("backend: %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("backend: read %s: %w", endpoint, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &StatusError{Endpoint: endpoint, Status: resp.StatusCode}
		if decodeErr == nil {
			statusErr.Message = env.Message
		}
		span.SetStatus(codes.Error, statusErr.Error())
		return statusErr
	}
	if decodeErr != nil {
		span.RecordError(decodeErr)
		return fmt.Errorf("backend: decode %s: %w", endpoint, decodeErr)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		statusErr := &StatusError{Endpoint: endpoint, Status: env.Code, Message: env.Message}
		span.SetStatus(codes.Error, statusErr.Error())
		return statusErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("backend: decode %s data: %w", endpoint, err)
	}
	return nil
}

// endpointName keeps span names low-cardinality: "/time-slots/t1/42" -> "/time-slots".
func endpointName(endpoint string) string {
	trimmed := strings.TrimPrefix(endpoint, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

func (c *Client) cached(ctx context.Context, key string, dst any) bool {
	if c.Cache == nil {
		return false
	}
	hit, err := c.Cache.Get(ctx, key, dst)
	if err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("backend_cache_read_failed")
		return false
	}
	return hit
}

func (c *Client) store(ctx context.Context, key string, v any) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Set(ctx, key, v); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("backend_cache_write_failed")
	}
}
