// Package gateway translates console operations into calls against the PRMS
// backend. It is stateless apart from configuration: the bearer token is read
// from the token store on every request.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franz/prms-console/internal/util"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// UserAgent identifies the console to the backend's request logs
var UserAgent = "prms-console/dev"

// TokenStore is where the bearer token lives between runs
type TokenStore interface {
	Token() (string, error)
	DeleteToken() error
}

// Config configures a Client
type Config struct {
	BaseURL  string        // e.g. http://127.0.0.1:8000
	Timeout  time.Duration // per request, raised to 30s when lower
	RetryMax int           // retries for GET requests only
	Tokens   TokenStore

	// OnUnauthorized runs after a 401 has purged the token. The CLI uses it to
	// send the operator to `prms login`.
	OnUnauthorized func()

	// HTTPClient overrides the underlying transport, mostly for tests
	HTTPClient *http.Client
}

// Client is the configured backend client
type Client struct {
	base           *url.URL
	reads          *retryablehttp.Client
	writes         *retryablehttp.Client
	tokens         TokenStore
	onUnauthorized func()
}

// New builds a Client
func New(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = util.DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: api.base_url %q is not an absolute URL", util.ErrInvalidConfig, baseURL)
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("%w: gateway needs a token store", util.ErrInvalidConfig)
	}

	timeout := cfg.Timeout
	if timeout < util.MinRequestTimeout {
		timeout = util.MinRequestTimeout
	}

	retry := util.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMax
	if retry.MaxAttempts < 0 {
		retry.MaxAttempts = 0
	}

	return &Client{
		base:           base,
		reads:          newTransport(cfg.HTTPClient, timeout, retry),
		writes:         newTransport(cfg.HTTPClient, timeout, util.NoRetryConfig()),
		tokens:         cfg.Tokens,
		onUnauthorized: cfg.OnUnauthorized,
	}, nil
}

func newTransport(hc *http.Client, timeout time.Duration, retry *util.RetryConfig) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if hc != nil {
		copied := *hc
		rc.HTTPClient = &copied
	}
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = retry.MaxAttempts
	rc.RetryWaitMin = retry.InitialWait
	rc.RetryWaitMax = retry.MaxWait
	rc.CheckRetry = util.CheckRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryLogger{}
	return rc
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.base.String()
}

// request describes one backend call
type request struct {
	method      string
	path        string      // below the base URL, e.g. /api/v1/unmatched
	query       url.Values  // optional
	body        interface{} // JSON-encoded when non-nil
	raw         []byte      // sent verbatim with contentType, wins over body
	contentType string
}

// response is a successful (2xx) reply
type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// send performs r and classifies failures into util.Error kinds
func (c *Client) send(ctx context.Context, r request) (*response, error) {
	requestID := uuid.NewString()
	log := util.WithFields(map[string]interface{}{
		"request_id": requestID,
		"method":     r.method,
		"path":       r.path,
	})

	var body interface{}
	contentType := ""
	switch {
	case r.raw != nil:
		body = r.raw
		contentType = r.contentType
	case r.body != nil:
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s %s body: %w", r.method, r.path, err)
		}
		body = b
		contentType = "application/json"
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	token, err := c.tokens.Token()
	if err != nil {
		log.Warnf("could not read token: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	transport := c.writes
	if r.method == http.MethodGet {
		transport = c.reads
	}

	start := time.Now()
	log.Debug("backend request")
	resp, err := transport.Do(req)
	if err != nil {
		log.Debugf("backend request failed: %v", err)
		return nil, util.WrapError(util.KindUnavailable, err, "backend unreachable at %s", c.base.Host)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, util.WrapError(util.KindUnavailable, err, "failed to read %s %s response", r.method, r.path)
	}
	log.WithField("status", resp.StatusCode).WithField("elapsed", time.Since(start).Round(time.Millisecond)).Debug("backend response")

	if resp.StatusCode == http.StatusUnauthorized {
		c.unauthorized()
		e := statusError(resp.StatusCode, data)
		e.Kind = util.KindAuth
		return nil, e
	}
	if resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, data)
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// unauthorized purges the token before anything else can read it, then signals
func (c *Client) unauthorized() {
	if err := c.tokens.DeleteToken(); err != nil {
		util.ErrorLog("Failed to purge token after 401: %v", err)
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// getJSON decodes a GET into out
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.send(ctx, request{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// doJSON sends body with method and decodes the reply into out (out may be nil)
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	resp, err := c.send(ctx, request{method: method, path: path, query: query, body: body})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(resp, out)
}

func decode(resp *response, out interface{}) error {
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return util.WrapError(util.KindUnavailable, err, "unexpected response from backend")
	}
	return nil
}

// retryLogger sends go-retryablehttp's chatter to the debug log
type retryLogger struct{}

func (retryLogger) fields(kv []interface{}) map[string]interface{} {
	f := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

func (l retryLogger) Error(msg string, kv ...interface{}) { util.WithFields(l.fields(kv)).Debug(msg) }
func (l retryLogger) Info(msg string, kv ...interface{})  { util.WithFields(l.fields(kv)).Debug(msg) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { util.WithFields(l.fields(kv)).Debug(msg) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { util.WithFields(l.fields(kv)).Debug(msg) }
