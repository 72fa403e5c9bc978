// Package gateway is the console's only way of talking to the backend API.
//
// A Gateway holds the configuration shared by every visitor. Client derives a
// per-session client whose cookie jar attaches that visitor's backend
// credentials. When the backend answers 401 the client renews the access token
// once through a separate renewal client and replays the request once.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 10 << 20
)

// Request describes one backend call. It is never modified by the gateway,
// the attempt count is reported on the result instead.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a successful (2xx) backend answer
type Response struct {
	StatusCode int
	Envelope   Envelope
	Raw        []byte
	// Attempts is 2 when the request was replayed after a renewal
	Attempts   int
	Refreshed  bool

	cookies []*http.Cookie
}

// Business returns a *BusinessError when the envelope status is not success
func (r *Response) Business(path string) error {
	if r.Envelope.Succeeded() {
		return nil
	}
	return &BusinessError{Path: path, Envelope: r.Envelope}
}

// Sender is implemented by Client. Domain services depend on it so tests can fake the backend.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Option configures a Gateway
type Option func(*Gateway)

// WithTransport replaces the HTTP transport of both the API and renewal clients
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) { g.transport = rt }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger used for renewal and replay events
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithExcludedPaths replaces the endpoints that never trigger a renewal
func WithExcludedPaths(paths ...string) Option {
	return func(g *Gateway) { g.excluded = append([]string(nil), paths...) }
}

// Gateway is the shared client configuration
type Gateway struct {
	baseURL   string
	refresh   *url.URL
	transport http.RoundTripper
	timeout   time.Duration
	excluded  []string
	logger    zerolog.Logger
	renewals  singleflight.Group
}

// New creates a gateway for the backend at baseURL (e.g. http://localhost:8000/api)
func New(baseURL string, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid backend url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("backend url %q must be absolute", baseURL)
	}

	g := &Gateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		refresh:   u.JoinPath(PathRefresh),
		transport: http.DefaultTransport,
		timeout:   defaultTimeout,
		excluded:  append([]string(nil), DefaultExcludedPaths...),
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// BaseURL returns the backend base URL without a trailing slash
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Excluded reports whether a 401 from path is propagated without renewal
func (g *Gateway) Excluded(path string) bool {
	for _, p := range g.excluded {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// Client derives a client for one visitor session. key identifies the
// session so concurrent renewals for it share one backend call. An empty key
// disables the sharing, which is what login and signup use.
func (g *Gateway) Client(jar http.CookieJar, key string) *Client {
	return &Client{
		gw:  g,
		key: key,
		api: &http.Client{
			Transport: g.transport,
			Timeout:   g.timeout,
			Jar:       jar,
		},
		renewal: &http.Client{
			Transport: g.transport,
			Timeout:   g.timeout,
			Jar:       jar,
		},
	}
}

// Client sends requests for one visitor session
type Client struct {
	gw      *Gateway
	key     string
	api     *http.Client
	renewal *http.Client
}

var _ Sender = (*Client)(nil)

// Send dispatches req. A 401 on a non-excluded path triggers one renewal and
// one replay. If renewal fails a *SessionExpiredError is returned. A 401 on
// the replay, on an excluded path, and every other failure are returned as is.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	resp, err := c.do(ctx, c.api, req, 1)
	if err == nil {
		return resp, nil
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized || c.gw.Excluded(req.Path) {
		return nil, err
	}

	logger := c.gw.logger.With().Str("method", req.Method).Str("path", req.Path).Logger()
	logger.Debug().Msg("Backend rejected access token, renewing")

	if err := c.Renew(ctx); err != nil {
		logger.Info().Err(err).Msg("Token renewal failed")
		return nil, &SessionExpiredError{Request: req, Cause: err}
	}

	resp, err = c.do(ctx, c.api, req, 2)
	if err != nil {
		return nil, err
	}
	resp.Refreshed = true
	return resp, nil
}

// Renew calls the refresh endpoint through the renewal client, which never
// goes through Send and so can never recurse into another renewal. The caller
// that performs the renewal receives the new cookies through its jar; callers
// that joined it have the same cookies applied to their own jar.
func (c *Client) Renew(ctx context.Context) error {
	renew := func() (any, error) {
		resp, err := c.do(ctx, c.renewal, Request{Method: http.MethodPost, Path: PathRefresh}, 1)
		if err != nil {
			return nil, err
		}
		return resp.cookies, nil
	}
	if c.key == "" {
		_, err := renew()
		return err
	}

	// singleflight runs fn on the leader's goroutine
	leader := false
	v, err, _ := c.gw.renewals.Do(c.key, func() (any, error) {
		leader = true
		return renew()
	})
	if err != nil || leader {
		return err
	}

	c.gw.logger.Debug().Str("session", c.key).Msg("Joined in-flight token renewal")
	if cookies, _ := v.([]*http.Cookie); len(cookies) > 0 && c.api.Jar != nil {
		c.api.Jar.SetCookies(c.gw.refresh, cookies)
	}
	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, req Request, attempt int) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := hc.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, &NetworkError{Method: req.Method, Path: req.Path, Err: err}
	}

	var env Envelope
	decodeErr := decodeEnvelope(raw, &env)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &HTTPError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: httpResp.StatusCode,
			Envelope:   env,
			Attempt:    attempt,
		}
	}
	if decodeErr != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s %s: %v", req.Method, req.Path, decodeErr)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Envelope:   env,
		Raw:        raw,
		Attempts:   attempt,
		cookies:    httpResp.Cookies(),
	}, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.gw.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s %s body", req.Method, req.Path)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, req.Path)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

func decodeEnvelope(raw []byte, env *Envelope) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, env)
}
