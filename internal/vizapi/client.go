package vizapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vizflow/internal/viz"
)

var tracer = otel.Tracer("vizflow/internal/vizapi")

// RequestIDHeader carries a per-call id so service logs can be correlated.
const RequestIDHeader = "X-Request-ID"

// TokenSource supplies the bearer credential for each request.
type TokenSource func(ctx context.Context) (string, error)

// Client is a client for the remote analysis service.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient  *http.Client
	logger      *slog.Logger
	timeout     time.Duration
	tokenSource TokenSource
}

// New creates a new Client for the given service base URL.
// The bearerToken is sent as an Authorization header on every request unless
// WithTokenSource supplies one dynamically.
func New(baseURL, bearerToken string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("vizapi: baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	token := cfg.tokenSource
	if token == nil {
		token = func(context.Context) (string, error) { return bearerToken, nil }
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d < 0 {
			return fmt.Errorf("vizapi: negative timeout %s", d)
		}
		cfg.timeout = d
		return nil
	}
}

// WithTokenSource resolves the bearer credential per request.
func WithTokenSource(ts TokenSource) Option {
	return func(cfg *clientConfig) error {
		cfg.tokenSource = ts
		return nil
	}
}

// doJSON executes an HTTP request and decodes the JSON response into dst.
// Transport failures become *viz.NetworkError, non-2xx responses
// *viz.ServiceError, undecodable bodies *viz.DataShapeError.
func (c *Client) doJSON(ctx context.Context, method, path, operation string, body, dst any) (err error) {
	url := c.baseURL + path
	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "vizapi "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
			attribute.String("vizflow.request_id", requestID),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("%s: resolve credential: %w", operation, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	c.logger.InfoContext(ctx, "API request", "operation", operation, "method", method, "url", url, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &viz.NetworkError{Op: operation, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.DebugContext(ctx, "API response", "operation", operation, "status", resp.StatusCode, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &viz.ServiceError{
			Op:         operation,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody, operation, resp.Status),
		}
	}

	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return viz.DataShapef(operation, "empty response body")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &viz.NetworkError{Op: operation, Err: ctxErr}
		}
		return viz.DataShapef(operation, "decode response: %v", err)
	}
	return nil
}

// ReadToken reads the first line of a file (e.g. .vizflow-token) and returns it trimmed.
func ReadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	return line, nil
}
