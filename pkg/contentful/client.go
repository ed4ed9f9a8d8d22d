package contentful

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.contentful.com"
	contentTypeCMA = "application/vnd.contentful.management.v1+json"
	tracerName     = "github.com/iota-uz/gamesync/pkg/contentful"
)

type ClientOptions struct {
	BaseURL         string
	SpaceID         string
	EnvironmentID   string
	AccessToken     string
	HTTPClient      *http.Client
	UserAgent       string
	RequestIDHeader string

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	JitterMax  time.Duration

	// RequestsPerSecond <= 0 or a nil Store disables client-side limiting.
	RequestsPerSecond int64
	Store             limiter.Store

	Logger *logrus.Entry
	Rand   *rand.Rand
}

func (o *ClientOptions) setDefaults() {
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.EnvironmentID == "" {
		o.EnvironmentID = "master"
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.UserAgent == "" {
		o.UserAgent = "gamesync/1.0"
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}

// Client talks to the content management API. It is safe to construct one
// per sync run; nothing in this package is global.
type Client struct {
	opts   ClientOptions
	base   *url.URL
	gate   *rateGate
	tracer trace.Tracer
}

var _ Repository = (*Client)(nil)

func NewClient(opts ClientOptions) (*Client, error) {
	opts.setDefaults()
	if strings.TrimSpace(opts.SpaceID) == "" {
		return nil, invalidConfig("space id is required")
	}
	if strings.TrimSpace(opts.AccessToken) == "" {
		return nil, invalidConfig("access token is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, invalidConfig("invalid base url %q", opts.BaseURL)
	}
	return &Client{
		opts:   opts,
		base:   u,
		gate:   newRateGate(opts.Store, opts.RequestsPerSecond, "space:"+opts.SpaceID),
		tracer: otel.Tracer(tracerName),
	}, nil
}

func (c *Client) envPath(parts ...string) string {
	segments := []string{"spaces", url.PathEscape(c.opts.SpaceID), "environments", url.PathEscape(c.opts.EnvironmentID)}
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return "/" + strings.Join(segments, "/")
}

type request struct {
	operation string
	method    string
	path      string
	query     url.Values
	headers   map[string]string
	body      any
}

// replayable reports whether a failed attempt may be sent again. Reads always
// may; writes only after a 429, which the API rejects before processing.
func (r request) replayable(err error) bool {
	if r.method == http.MethodGet || r.method == http.MethodHead {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

// do sends one logical request, retrying throttled and 5xx responses. Writes
// are resent on 429 only. The decoded body is written to out; the raw body is
// returned as well.
func (c *Client) do(ctx context.Context, req request, out any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "contentful."+req.operation, trace.WithAttributes(
		attribute.String("http.method", req.method),
		attribute.String("contentful.space", c.opts.SpaceID),
		attribute.String("contentful.environment", c.opts.EnvironmentID),
	))
	defer span.End()

	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "marshal request")
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt, c.opts.BaseDelay, c.opts.MaxDelay) + jitter(c.opts.Rand, c.opts.JitterMax)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
				if hint := apiErr.retryAfter; hint > delay {
					delay = hint
				}
			}
			c.opts.Logger.WithFields(logrus.Fields{
				"operation": req.operation,
				"attempt":   attempt,
				"delay":     delay.String(),
			}).WithError(lastErr).Warn("contentful: retrying request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.gate.wait(ctx); err != nil {
			span.RecordError(err)
			return nil, err
		}

		body, retry, err := c.doOnce(ctx, req, payload, out)
		if err == nil {
			span.SetAttributes(attribute.Int("contentful.attempts", attempt+1))
			return body, nil
		}
		lastErr = err
		if !retry || !req.replayable(err) || ctx.Err() != nil {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, req request, payload []byte, out any) ([]byte, bool, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + req.path
	if req.query != nil {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, false, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	if payload != nil {
		httpReq.Header.Set("Content-Type", contentTypeCMA)
	}
	if c.opts.RequestIDHeader != "" {
		httpReq.Header.Set(c.opts.RequestIDHeader, uuid.NewString())
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		recordRequest(req.operation, 0, time.Since(start))
		return nil, ctx.Err() == nil, errors.Wrap(err, "http do")
	}
	defer func() { _ = resp.Body.Close() }()
	recordRequest(req.operation, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.Wrap(err, "http read")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, respBody)
		apiErr.retryAfter = retryAfter(resp.Header)
		return nil, retryableStatus(resp.StatusCode), apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, false, fmt.Errorf("decode %s response: %w", req.operation, err)
		}
	}
	return respBody, false, nil
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
