package roblox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dawnbot/dawn/internal/metrics"
	"github.com/dawnbot/dawn/pkg/logger"
)

const (
	defaultLogoutURL      = "https://auth.roblox.com/v1/logout"
	defaultRetryCeiling   = 8
	defaultRequestTimeout = 30 * time.Second

	csrfHeader = "X-CSRF-TOKEN"
)

// Response is the outcome of one logical call: a 2xx status, its
// headers, and the fully-read body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Engine issues authenticated Roblox API requests on one session. It
// owns the CSRF handshake, picks up server-driven token rotation,
// classifies failures, and retries transient ones with exponential
// backoff. A logical call spans every physical request made on its
// behalf, retries included; physical requests within one logical call
// are strictly sequential.
type Engine struct {
	creds   *Credential
	session *Session
	client  *http.Client
	log     *slog.Logger
	limiter *RateLimiter

	logoutURL    string
	retryCeiling int
	sleepFunc    func(ctx context.Context, d time.Duration) error
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithHTTPClient overrides the default HTTP client. The caller is then
// responsible for proxy wiring and timeouts.
func WithHTTPClient(c *http.Client) EngineOption {
	return func(e *Engine) {
		e.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithRateLimiter injects a rate limiter applied to every physical
// request, bootstrap and retries included.
func WithRateLimiter(r *RateLimiter) EngineOption {
	return func(e *Engine) {
		e.limiter = r
	}
}

// WithLogoutURL overrides the CSRF bootstrap endpoint.
func WithLogoutURL(u string) EngineOption {
	return func(e *Engine) {
		e.logoutURL = u
	}
}

// WithRetryCeiling overrides the retry ceiling.
func WithRetryCeiling(n int) EngineOption {
	return func(e *Engine) {
		e.retryCeiling = n
	}
}

// WithSleepFunc overrides the backoff sleep for testing.
func WithSleepFunc(f func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		e.sleepFunc = f
	}
}

// WithRequestTimeout sets the per-request timeout on the engine's HTTP
// client. Apply after WithHTTPClient when combining the two.
func WithRequestTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.client.Timeout = d
	}
}

// NewEngine creates a request engine for the given credential and
// session. The default HTTP client routes through the credential's
// proxy, if any.
func NewEngine(creds *Credential, session *Session, opts ...EngineOption) *Engine {
	e := &Engine{
		creds:        creds,
		session:      session,
		client:       newHTTPClient(creds),
		log:          logger.NewNop(),
		logoutURL:    defaultLogoutURL,
		retryCeiling: defaultRetryCeiling,
		sleepFunc:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newHTTPClient(creds *Credential) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p := creds.Proxy(); p != nil {
		transport.Proxy = http.ProxyURL(p)
	}
	return &http.Client{
		Timeout:   defaultRequestTimeout,
		Transport: transport,
	}
}

// Session returns the session state this engine mutates.
func (e *Engine) Session() *Session {
	return e.session
}

// Close releases idle connections held by the engine's HTTP client.
func (e *Engine) Close() {
	e.client.CloseIdleConnections()
}

// Execute performs one logical call. It returns the response on any
// 2xx status. Failure modes: *InvalidCookieError on 401,
// *RetryExhaustedError once transient failures (transport errors, 5xx,
// 429) outlast the retry ceiling, *UnhandledResponseError for anything
// else, and the context's error if the caller cancels mid-call.
//
// The retry loop is deliberately iterative: outage duration is
// externally controlled, so recursion depth would be too.
func (e *Engine) Execute(ctx context.Context, method, url string, body []byte) (*Response, error) {
	callID := uuid.NewString()

	for retries := 0; ; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, resp, err := e.attempt(ctx, method, url, body)
		if err != nil {
			var te *transportError
			if !errors.As(err, &te) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
		}

		if err == nil && !retryableStatus(status) {
			switch {
			case status == http.StatusUnauthorized:
				return nil, &InvalidCookieError{StatusCode: status, URL: url}
			case status >= 200 && status < 300:
				return resp, nil
			default:
				return nil, &UnhandledResponseError{
					StatusCode: status,
					URL:        url,
					Proxy:      e.creds.ProxyID(),
				}
			}
		}

		retries++
		if retries > e.retryCeiling {
			metrics.RetriesExhaustedTotal.Inc()
			return nil, &RetryExhaustedError{
				URL:        url,
				Attempts:   e.retryCeiling,
				StatusCode: status,
				Proxy:      e.creds.ProxyID(),
			}
		}

		delay := time.Duration(1<<retries) * time.Second
		metrics.APIRetriesTotal.Inc()
		e.log.Warn("retrying request",
			"call_id", callID,
			"url", url,
			"status", status,
			"attempt", retries,
			"delay", delay,
		)

		if err := e.sleepFunc(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs a single physical request cycle: rate limit wait,
// CSRF ensure, primary call, rotation pickup. status is 0 when the
// cycle died before producing one.
func (e *Engine) attempt(ctx context.Context, method, url string, body []byte) (int, *Response, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	csrf, err := e.session.EnsureCSRF(ctx, e.bootstrapCSRF)
	if err != nil {
		return 0, nil, err
	}

	resp, err := e.do(ctx, method, url, csrf, body)
	if err != nil {
		return 0, nil, err
	}

	if e.session.Rotate(resp.Header.Get(csrfHeader), csrf) {
		metrics.CSRFRefreshesTotal.Inc()
		e.log.Debug("csrf token rotated", "url", url)
	}

	return resp.StatusCode, resp, nil
}

// bootstrapCSRF harvests a fresh CSRF token from the logout endpoint's
// response header. Called under the session lock, at most once per
// session unless the server later invalidates the token.
func (e *Engine) bootstrapCSRF(ctx context.Context) (string, error) {
	resp, err := e.do(ctx, http.MethodPost, e.logoutURL, "", nil)
	if err != nil {
		return "", err
	}

	token := resp.Header.Get(csrfHeader)
	if token == "" {
		if resp.StatusCode == http.StatusUnauthorized {
			return "", &InvalidCookieError{StatusCode: resp.StatusCode, URL: e.logoutURL}
		}
		return "", &UnhandledResponseError{
			StatusCode: resp.StatusCode,
			URL:        e.logoutURL,
			Proxy:      e.creds.ProxyID(),
			Err:        errors.New("no csrf token in response"),
		}
	}

	metrics.CSRFRefreshesTotal.Inc()
	e.log.Debug("csrf token bootstrapped")
	return token, nil
}

// do issues one physical HTTP request. Network failures, including a
// truncated body read, come back as *transportError.
func (e *Engine) do(ctx context.Context, method, url, csrf string, body []byte) (*Response, error) {
	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.AddCookie(&http.Cookie{Name: cookieName, Value: e.creds.CookieValue()})
	if csrf != "" {
		req.Header.Set(csrfHeader, csrf)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	metrics.APICallsTotal.Inc()
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	metrics.RequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &transportError{err: err}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       b,
	}, nil
}

func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
