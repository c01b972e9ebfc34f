package ext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/guesthost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/guesthost/internal/permissions"
)

// MaxRedirects bounds how many redirects one fetch follows
const MaxRedirects = 10

// ErrBodyTooLarge is returned when a response exceeds MaxBodySize
var ErrBodyTooLarge = errors.New("response body too large")

// FetchConfig tunes the outbound HTTP client shared by guest fetches
type FetchConfig struct {
	Timeout      time.Duration
	RPS          float64 // 0 disables rate limiting
	Burst        int
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	MaxBodySize  int64
	UserAgent    string
}

// DefaultFetchConfig returns the client settings used when none are configured
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:      30 * time.Second,
		Retries:      2,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		MaxBodySize:  10 << 20,
		UserAgent:    "guesthost/1.0",
	}
}

// FetchRequest is a guest request after option parsing
type FetchRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// FetchResponse is a fully read, decoded response
type FetchResponse struct {
	Status     int
	StatusText string
	URL        string
	Redirected bool
	Headers    map[string]string
	Body       []byte
}

// FetchClient wraps resty with a retrying transport, a rate limiter and a
// circuit breaker. Every redirect hop is re-checked through the per-request
// callback before it is followed.
type FetchClient struct {
	config  FetchConfig
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

type redirectCheckKey struct{}

// NewFetchClient creates a client from cfg
func NewFetchClient(cfg FetchConfig, logger *zap.Logger) *FetchClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultFetchConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaults.MaxBodySize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil
	// the last response reaches the guest even when retries are exhausted
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// redirects are followed by the outer client so each hop is checked
	retryClient.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	restyClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept-Encoding", "gzip, zstd, deflate").
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient}).
		SetRedirectPolicy(resty.RedirectPolicyFunc(checkRedirect))

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RPS) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	breaker := resilience.New("fetch", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			// guests hit arbitrary hosts, so only trip on sustained failure
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &FetchClient{
		config:  cfg,
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// Config returns the effective configuration
func (c *FetchClient) Config() FetchConfig {
	return c.config
}

// Breaker exposes the client's circuit breaker for health reporting
func (c *FetchClient) Breaker() *resilience.Breaker {
	return c.breaker
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	if check, ok := req.Context().Value(redirectCheckKey{}).(func(*url.URL) error); ok && check != nil {
		return check(req.URL)
	}
	return nil
}

// upstreamFailure reports whether err should count against the breaker
func upstreamFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, permissions.ErrPermissionDenied) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, ErrBodyTooLarge)
}

// Do performs req. allow is called with every redirect target before it is
// followed; its error aborts the fetch.
func (c *FetchClient) Do(ctx context.Context, req FetchRequest, allow func(*url.URL) error) (*FetchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	done, err := c.breaker.Allow()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	ctx = context.WithValue(ctx, redirectCheckKey{}, allow)
	r := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(req.Headers)
	if req.Body != "" {
		r.SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(method, req.URL)
	if err != nil {
		done(!upstreamFailure(err))
		return nil, err
	}
	raw := resp.RawBody()
	defer raw.Close()

	body, err := c.readBody(raw, resp.Header().Get("Content-Encoding"))
	if err != nil {
		done(!upstreamFailure(err))
		return nil, err
	}
	done(resp.StatusCode() < http.StatusInternalServerError)

	final := req.URL
	if rr := resp.RawResponse; rr != nil && rr.Request != nil && rr.Request.URL != nil {
		final = rr.Request.URL.String()
	}

	c.logger.Debug("Fetch completed",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)

	return &FetchResponse{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		URL:        final,
		Redirected: final != req.URL,
		Headers:    flattenHeaders(resp.Header()),
		Body:       body,
	}, nil
}

func (c *FetchClient) readBody(raw io.Reader, encoding string) ([]byte, error) {
	decoded, err := decodeBody(raw, encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", encoding, err)
	}
	defer decoded.Close()

	body, err := io.ReadAll(io.LimitReader(decoded, c.config.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > c.config.MaxBodySize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, c.config.MaxBodySize)
	}
	return body, nil
}

// decodeBody undoes a Content-Encoding. Unknown encodings pass through.
func decodeBody(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return gzip.NewReader(r)
	case "zstd":
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case "deflate":
		return zlib.NewReader(r)
	default:
		return io.NopCloser(r), nil
	}
}

// flattenHeaders lower-cases names and joins repeated values
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}
