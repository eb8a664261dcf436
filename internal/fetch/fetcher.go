package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/metrics"
)

const userAgent = "energy-cost-analyzer/1.0"

// Policy controls retries. Delay before retry n is BaseDelay*2^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy waits 2s and then 4s between three attempts.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 8 * time.Second}
}

// PolicyFromConfig converts the fetch section of the configuration.
func PolicyFromConfig(cfg config.FetchConfig) Policy {
	return Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay, MaxDelay: cfg.MaxDelay}
}

func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Options describe one request. At most one of Body, JSON and Form is used.
type Options struct {
	Query  url.Values
	Header http.Header
	Body   []byte
	JSON   any
	Form   url.Values
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", r.URL, err)
	}
	return nil
}

// Fetcher performs HTTP requests with bounded retries on server and transport failures.
type Fetcher struct {
	client   *http.Client
	policy   Policy
	executor failsafe.Executor[*Response]
	logger   logging.Logger
}

// New creates a Fetcher. A nil client means http.DefaultClient.
func New(client *http.Client, policy Policy, logger logging.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Discard()
	}
	policy = policy.normalize()

	retry := retrypolicy.NewBuilder[*Response]().
		HandleIf(func(resp *Response, err error) bool {
			return shouldRetry(resp, err)
		}).
		WithBackoff(policy.BaseDelay, policy.MaxDelay).
		WithMaxRetries(policy.MaxAttempts - 1).
		ReturnLastFailure().
		Build()

	return &Fetcher{
		client:   client,
		policy:   policy,
		executor: failsafe.With(retry),
		logger:   logger,
	}
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Policy returns the effective retry policy.
func (f *Fetcher) Policy() Policy {
	return f.policy
}

func shouldRetry(resp *Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp == nil || resp.StatusCode >= http.StatusInternalServerError
}

// Execute sends the request. Statuses below 400 are returned as-is, 4xx
// fails at once with *StatusError, and exhausted retries yield *UnreachableError.
func (f *Fetcher) Execute(ctx context.Context, method, rawURL string, opts Options) (*Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if len(opts.Query) > 0 {
		q := target.Query()
		for k, vs := range opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, err
	}

	var (
		attempts int
		last     *Response
		lastErr  error
	)
	log := f.logger.WithFields(logging.Fields{"method": method, "host": target.Host, "path": target.Path})

	_, _ = f.executor.WithContext(ctx).Get(func() (*Response, error) {
		attempts++
		resp, err := f.do(ctx, method, target, opts.Header, body, contentType)
		last, lastErr = resp, err

		switch {
		case err != nil:
			log.WithError(err).WithField("attempt", attempts).Warn("request failed")
			metrics.FetchAttempts.WithLabelValues(target.Host, "retry").Inc()
		case resp.StatusCode >= http.StatusInternalServerError:
			log.WithFields(logging.Fields{"attempt": attempts, "status": resp.StatusCode}).Warn("server error")
			metrics.FetchAttempts.WithLabelValues(target.Host, "retry").Inc()
		case resp.StatusCode >= http.StatusBadRequest:
			metrics.FetchAttempts.WithLabelValues(target.Host, "client_error").Inc()
		default:
			metrics.FetchAttempts.WithLabelValues(target.Host, "ok").Inc()
		}
		return resp, err
	})

	if ctxErr := ctx.Err(); ctxErr != nil && (lastErr != nil || last == nil || last.StatusCode >= http.StatusInternalServerError) {
		return nil, ctxErr
	}

	if lastErr != nil || last == nil {
		metrics.FetchAttempts.WithLabelValues(target.Host, "unreachable").Inc()
		return nil, &UnreachableError{URL: target.Redacted(), Attempts: attempts, Err: lastErr}
	}
	if last.StatusCode >= http.StatusInternalServerError {
		metrics.FetchAttempts.WithLabelValues(target.Host, "unreachable").Inc()
		return nil, &UnreachableError{URL: target.Redacted(), Attempts: attempts, Status: last.StatusCode}
	}
	if last.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{URL: target.Redacted(), Status: last.StatusCode, Body: snippet(last.Body)}
	}
	return last, nil
}

// Get is Execute with GET.
func (f *Fetcher) Get(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	return f.Execute(ctx, http.MethodGet, rawURL, opts)
}

// Post is Execute with POST.
func (f *Fetcher) Post(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	return f.Execute(ctx, http.MethodPost, rawURL, opts)
}

func (f *Fetcher) do(ctx context.Context, method string, target *url.URL, header http.Header, body []byte, contentType string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        resp.Request.URL,
	}, nil
}

func encodeBody(opts Options) ([]byte, string, error) {
	switch {
	case opts.JSON != nil:
		data, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return data, "application/json", nil
	case opts.Form != nil:
		return []byte(opts.Form.Encode()), "application/x-www-form-urlencoded", nil
	case opts.Body != nil:
		return opts.Body, "", nil
	}
	return nil, "", nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
