// Package ledger is the REST client of the remote pull ledger service.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	perr "github.com/xtding233/gacha-ledger/internal/errors"
	"github.com/xtding233/gacha-ledger/internal/logger"
)

const (
	// DefaultTimeout bounds a single HTTP request
	DefaultTimeout = 10 * time.Second

	// DefaultPageSize is the ledger page size when none is configured
	DefaultPageSize = 100

	// maxPages stops a ledger walk whose page count never converges
	maxPages = 1000
)

// DefaultRateLimit keeps the client well under the service quota.
var DefaultRateLimit = rate.Every(200 * time.Millisecond)

// Client talks to the ledger service.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	scale      RarityScale
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// ClientOptions configures the ledger client.
type ClientOptions struct {
	BaseURL string
	APIKey  string

	// RateLimit controls request frequency (default: 5 req/second)
	RateLimit rate.Limit
	Burst     int

	// Timeout for HTTP requests (default: 10 seconds)
	Timeout time.Duration

	PageSize int
	Scale    RarityScale

	// HTTPClient allows custom HTTP client
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// DefaultClientOptions returns conservative default options.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		RateLimit: DefaultRateLimit,
		Burst:     1,
		Timeout:   DefaultTimeout,
		PageSize:  DefaultPageSize,
		Scale:     DefaultScale,
	}
}

// NewClient creates a ledger client; zero options take their defaults.
func NewClient(options ClientOptions) *Client {
	def := DefaultClientOptions()
	if options.RateLimit == 0 {
		options.RateLimit = def.RateLimit
	}
	if options.Burst < 1 {
		options.Burst = def.Burst
	}
	if options.Timeout == 0 {
		options.Timeout = def.Timeout
	}
	if options.PageSize < 1 {
		options.PageSize = def.PageSize
	}
	if options.Scale.TopStars == 0 {
		options.Scale = def.Scale
	}
	if options.Logger == nil {
		options.Logger = logger.Nop()
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: options.Timeout,
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		apiKey:     options.APIKey,
		pageSize:   options.PageSize,
		scale:      options.Scale,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(options.RateLimit, options.Burst),
		log:        options.Logger,
	}
}

// do performs one rate-limited request and decodes a 2xx JSON body into out.
// The status code is returned so callers can give non-error meaning to some codes.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeTooManyRequests, "rate limiter")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "failed to create request")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("request_id", reqID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("ledger request")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, perr.Wrapf(err, perr.ErrorCodeUnavailable, "read %s body", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, statusError(method, path, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, perr.Wrapf(err, perr.ErrorCodeUnavailable, "malformed %s response", path)
	}
	return resp.StatusCode, nil
}

func statusError(method, path string, status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	code := perr.ErrorCodeUnavailable
	switch status {
	case http.StatusNotFound:
		code = perr.ErrorCodeNotFound
	case http.StatusConflict:
		code = perr.ErrorCodeConflict
	case http.StatusTooManyRequests:
		code = perr.ErrorCodeTooManyRequests
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = perr.ErrorCodeInvalidArgument
	}
	return perr.Newf(code, "%s %s: unexpected status code %d: %s", method, path, status, snippet)
}

func escape(s string) string { return url.PathEscape(s) }
