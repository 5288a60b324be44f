package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrReadTimeout is returned from a response body that delivered no bytes
// for longer than the configured read timeout.
var ErrReadTimeout = errors.New("read timeout")

// retryableStatuses are the HTTP statuses treated as transient by the policy.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures the transport policy.
type Options struct {
	// ConnectTimeout bounds dialing and the TLS handshake.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for response headers and every gap between
	// body reads. Slow servers stall mid-transfer, keep it in minutes.
	ReadTimeout time.Duration

	// RetryMax is the number of retries per request on top of the first attempt.
	RetryMax int

	// RetryWaitMin is the first backoff; each further retry doubles it.
	RetryWaitMin time.Duration

	// RetryWaitMax caps the backoff.
	RetryWaitMax time.Duration

	UserAgent           string
	MaxIdleConnsPerHost int
}

// DefaultOptions returns the options used for unattended archive downloads.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:      15 * time.Second,
		ReadTimeout:         5 * time.Minute,
		RetryMax:            5,
		RetryWaitMin:        2 * time.Second,
		RetryWaitMax:        2 * time.Minute,
		UserAgent:           "segdl",
		MaxIdleConnsPerHost: 4,
	}
}

// Policy issues HTTP requests with consistent timeouts, and retries GET and HEAD
// requests on transient failures with exponential backoff.
// It is safe for concurrent use.
type Policy struct {
	opts     Options
	plain    *http.Client
	retrying *retryablehttp.Client
}

// NewPolicy creates a Policy. Zero durations in opts fall back to DefaultOptions.
func NewPolicy(opts Options, logger *zap.Logger) *Policy {
	defaults := DefaultOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaults.ConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = defaults.RetryWaitMin
	}
	if opts.RetryWaitMax < opts.RetryWaitMin {
		opts.RetryWaitMax = opts.RetryWaitMin
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	// no overall client timeout: a healthy transfer of a multi-GB part takes hours
	plain := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.ReadTimeout,
			MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true, // byte offsets must refer to the raw entity
		},
	}

	return &Policy{
		opts:  opts,
		plain: plain,
		retrying: &retryablehttp.Client{
			HTTPClient:   plain,
			Logger:       newRetryLogger(logger),
			RetryWaitMin: opts.RetryWaitMin,
			RetryWaitMax: opts.RetryWaitMax,
			RetryMax:     opts.RetryMax,
			CheckRetry:   checkRetry,
			Backoff:      cappedBackoff,
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
		},
	}
}

// Options returns the effective options of the policy.
func (p *Policy) Options() Options {
	return p.opts
}

// Do sends req. GET and HEAD requests are retried on transient failures; when
// the retries are used up on a transient status the last response is returned
// so the caller can classify it. The response body fails with ErrReadTimeout
// if the server stalls for longer than the read timeout.
func (p *Policy) Do(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	req = req.Clone(ctx)
	if p.opts.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}

	var (
		resp *http.Response
		err  error
	)
	if isIdempotent(req.Method) {
		var rreq *retryablehttp.Request
		rreq, err = retryablehttp.FromRequest(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("wrap request: %w", err)
		}
		resp, err = p.retrying.Do(rreq)
	} else {
		resp, err = p.plain.Do(req)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = newWatchdogBody(resp.Body, p.opts.ReadTimeout, cancel)
	return resp, nil
}

// Head issues a HEAD request for url.
func (p *Policy) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return p.Do(req)
}

// Get issues a GET request for url with the given extra headers.
func (p *Policy) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return p.Do(req)
}

// IsRetryableStatus reports whether code is one of the transient HTTP statuses.
func IsRetryableStatus(code int) bool {
	return retryableStatuses[code]
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// checkRetry retries connection-level failures and the transient statuses only.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return IsRetryableStatus(resp.StatusCode), nil
}

// cappedBackoff is retryablehttp.DefaultBackoff with Retry-After limited to waitMax.
func cappedBackoff(waitMin, waitMax time.Duration, attempt int, resp *http.Response) time.Duration {
	return min(retryablehttp.DefaultBackoff(waitMin, waitMax, attempt, resp), waitMax)
}
