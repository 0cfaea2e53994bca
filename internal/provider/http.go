package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/logging"
	"github.com/Iron-Ham/monosplit/internal/retry"
)

const (
	// defaultTimeout bounds a single provider request.
	defaultTimeout = 30 * time.Second

	// defaultCacheSize is how many known repositories are remembered per run.
	defaultCacheSize = 256

	// maxErrorBody is how much of an error response is kept on the error.
	maxErrorBody = 2048
)

// Option configures an adapter.
type Option func(*settings)

type settings struct {
	httpClient *http.Client
	logger     *logging.Logger
	cacheSize  int
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.httpClient = &http.Client{Timeout: d}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithCacheSize sets how many existing repositories are remembered.
func WithCacheSize(n int) Option {
	return func(s *settings) {
		s.cacheSize = n
	}
}

func newSettings(opts []Option) settings {
	s := settings{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(&s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	if s.cacheSize < 1 {
		s.cacheSize = defaultCacheSize
	}
	return s
}

// quotaHeaders names the response headers carrying a provider's quota.
type quotaHeaders struct {
	remaining string
	limit     string
	reset     string // unix seconds
}

var xRateLimit = quotaHeaders{
	remaining: "X-RateLimit-Remaining",
	limit:     "X-RateLimit-Limit",
	reset:     "X-RateLimit-Reset",
}

// client is the HTTP plumbing shared by the adapters: authentication,
// quota tracking, status classification and the known-repository cache.
type client struct {
	provider string
	http     *http.Client
	headers  quotaHeaders
	auth     func(*http.Request)
	logger   *logging.Logger
	known    *lru.Cache[string, string]

	mu    sync.Mutex
	quota retry.Quota
}

func newClient(provider string, s settings, headers quotaHeaders, auth func(*http.Request)) *client {
	// lru.New only fails for a non-positive size, which newSettings rules out.
	known, _ := lru.New[string, string](s.cacheSize)
	return &client{
		provider: provider,
		http:     s.httpClient,
		headers:  headers,
		auth:     auth,
		logger:   s.logger.WithProvider(provider),
		known:    known,
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) decode(v any) error {
	return json.Unmarshal(r.body, v)
}

func (r *response) contains(substr string) bool {
	return strings.Contains(strings.ToLower(string(r.body)), strings.ToLower(substr))
}

// do sends a request with an optional JSON payload. Network failures are
// returned as transient ProviderErrors; any HTTP status is returned as a
// response for the adapter to interpret.
func (c *client) do(ctx context.Context, method, url string, payload any) (*response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewProviderError("request failed", errors.ProviderTransient, err).
			WithProvider(c.provider)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewProviderError("failed to read response", errors.ProviderTransient, err).
			WithProvider(c.provider).
			WithStatus(resp.StatusCode)
	}

	c.observe(resp.Header)
	c.logger.Debug("provider request",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
	)

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// observe records the quota headers of a response, if present.
func (c *client) observe(h http.Header) {
	remaining, err := strconv.Atoi(h.Get(c.headers.remaining))
	if err != nil {
		return
	}
	q := retry.Quota{Known: true, Remaining: remaining}
	if limit, err := strconv.Atoi(h.Get(c.headers.limit)); err == nil {
		q.Limit = limit
	}
	if reset, err := strconv.ParseInt(h.Get(c.headers.reset), 10, 64); err == nil {
		q.Reset = time.Unix(reset, 0)
	}

	c.mu.Lock()
	c.quota = q
	c.mu.Unlock()
}

// Quota returns the most recently observed quota.
func (c *client) Quota() retry.Quota {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quota
}

// statusError classifies a response the adapter did not expect.
func (c *client) statusError(op, repo string, resp *response) error {
	kind := errors.ProviderRejected
	var retryAfter time.Duration

	switch {
	case resp.status == http.StatusTooManyRequests,
		resp.status == http.StatusForbidden && c.throttled(resp.header):
		kind = errors.ProviderRateLimited
		retryAfter = c.retryAfter(resp.header)
	case resp.status == http.StatusUnauthorized, resp.status == http.StatusForbidden:
		kind = errors.ProviderAuth
	case resp.status == http.StatusNonAuthoritativeInfo:
		// Azure DevOps answers bad credentials with a sign-in page.
		kind = errors.ProviderAuth
	case resp.status >= 500:
		kind = errors.ProviderTransient
	}

	body := string(resp.body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	return errors.NewProviderError(op, kind, nil).
		WithProvider(c.provider).
		WithRepository(repo).
		WithStatus(resp.status).
		WithRetryAfter(retryAfter).
		WithBody(strings.TrimSpace(body))
}

// throttled reports whether a 403 is a rate limit rather than a permission error.
func (c *client) throttled(h http.Header) bool {
	return h.Get(c.headers.remaining) == "0" || h.Get("Retry-After") != ""
}

// retryAfter parses Retry-After (seconds or HTTP date), falling back to the
// quota reset header. Zero means the caller's default applies.
func (c *client) retryAfter(h http.Header) time.Duration {
	if raw := h.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(raw); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if reset, err := strconv.ParseInt(h.Get(c.headers.reset), 10, 64); err == nil {
		if d := time.Until(time.Unix(reset, 0)); d > 0 {
			return d
		}
	}
	return 0
}

// remember caches the clone URL of a repository known to exist.
func (c *client) remember(name, cloneURL string, outcome Outcome) CreateResult {
	c.known.Add(name, cloneURL)
	if outcome == AlreadyExists {
		c.logger.Warn("repository already exists, reusing it", "repo", name, "clone_url", cloneURL)
	} else {
		c.logger.Info("created repository", "repo", name, "clone_url", cloneURL)
	}
	return CreateResult{Outcome: outcome, CloneURL: cloneURL}
}

// recall returns a cached AlreadyExists result for name.
func (c *client) recall(name string) (CreateResult, bool) {
	cloneURL, ok := c.known.Get(name)
	if !ok {
		return CreateResult{}, false
	}
	return CreateResult{Outcome: AlreadyExists, CloneURL: cloneURL}, true
}

func failed(err error) (CreateResult, error) {
	return CreateResult{Outcome: Failed, Reason: err.Error()}, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// joinURL joins a base URL and path segments, skipping empty segments.
func joinURL(base string, segments ...string) string {
	parts := []string{strings.TrimRight(base, "/")}
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
