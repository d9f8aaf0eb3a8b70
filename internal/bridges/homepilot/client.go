package homepilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Client operation constants.
const (
	// defaultRequestTimeout bounds a single HTTP round trip to the bridge.
	defaultRequestTimeout = 5 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	// The largest real payload (full device list) stays well under this.
	maxResponseBytes = 4 << 20

	// loginFlightKey is the singleflight key shared by every login attempt.
	loginFlightKey = "login"
)

// Logger is the interface for structured logging.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ClientOptions holds configuration for creating a bridge client.
type ClientOptions struct {
	// Host is the bridge address, with or without an http:// scheme.
	Host string

	// Password is the bridge password. Empty means the bridge has
	// authentication disabled and requests go out without a session.
	Password string

	// Timeout bounds each request. Default: 5 seconds.
	Timeout time.Duration

	// HTTPClient is optional. A plain client is created when nil.
	HTTPClient *http.Client

	// Logger is optional.
	Logger Logger
}

// session holds the cookies the bridge issued during login.
// It is replaced whole, never mutated.
type session struct {
	cookies     []*http.Cookie
	established time.Time
}

// response is a fully read HTTP response.
type response struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

// Client talks to a single HomePilot bridge over HTTP.
//
// The client owns the authenticated session. Data calls establish a
// session on demand; concurrent callers share one login. A 401 or 403
// on an authenticated call drops the session, logs in again once and
// retries the request.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration

	mu       sync.RWMutex
	password string
	session  *session

	logins     singleflight.Group
	loginCount atomic.Int64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient creates a client for the bridge at opts.Host.
// No network traffic happens until the first call.
//
// Parameters:
//   - opts: Client options; Host is required
//
// Returns:
//   - *Client: Ready to use
//   - error: If Host is empty
func NewClient(opts ClientOptions) (*Client, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return nil, fmt.Errorf("bridge host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimRight(host, "/"),
		httpClient: httpClient,
		timeout:    timeout,
		password:   opts.Password,
		logger:     opts.Logger,
	}, nil
}

// BaseURL returns the bridge URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetPassword replaces the bridge password and drops the current session.
// The next authenticated call logs in with the new password.
func (c *Client) SetPassword(password string) {
	c.mu.Lock()
	c.password = password
	c.session = nil
	c.mu.Unlock()
}

// Authenticated reports whether a session is currently held.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// LoginCount returns how many logins have completed successfully.
func (c *Client) LoginCount() int64 {
	return c.loginCount.Load()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) currentPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.password
}

func (c *Client) currentSession() *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// needsLogin reports whether a password is set but no session is held.
func (c *Client) needsLogin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.password != "" && c.session == nil
}

// dropSession clears the session only if it is still the one that was
// rejected, so a fresh session from a concurrent re-login survives.
func (c *Client) dropSession(stale *session) {
	c.mu.Lock()
	if c.session == stale {
		c.session = nil
	}
	c.mu.Unlock()
}

// ensureSession logs in when a password is set and no session exists.
// Concurrent callers wait on the same login.
func (c *Client) ensureSession(ctx context.Context) error {
	if !c.needsLogin() {
		return nil
	}
	return c.runLogin(ctx, false)
}

// runLogin performs a single-flight login. When force is false the
// login is skipped if another caller already established a session.
func (c *Client) runLogin(ctx context.Context, force bool) error {
	ch := c.logins.DoChan(loginFlightKey, func() (any, error) {
		if !force && !c.needsLogin() {
			return nil, nil
		}
		// Detached from the first caller so its cancellation does not
		// fail the login for everyone else waiting on it.
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*c.timeout)
		defer cancel()
		return nil, c.login(loginCtx)
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for login: %w", ErrCannotConnect, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

// do performs an authenticated request and returns the response body.
// A 401 or 403 triggers one re-login and one retry.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.ensureSession(ctx); err != nil {
			return nil, err
		}
		sess := c.currentSession()

		resp, err := c.send(ctx, method, path, body, sess)
		if err != nil {
			return nil, err
		}

		if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
			if attempt == 0 && c.currentPassword() != "" {
				c.logDebug("session rejected, logging in again", "path", path, "status", resp.status)
				c.dropSession(sess)
				continue
			}
			return nil, fmt.Errorf("%w: %s %s returned %d", ErrAuth, method, path, resp.status)
		}

		if resp.status < 200 || resp.status > 299 {
			return nil, fmt.Errorf("%w: %s %s returned %d", ErrCannotConnect, method, path, resp.status)
		}
		return resp.body, nil
	}
}

// getJSON performs an authenticated GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return invalidResponse(path, err)
	}
	return nil
}

// send performs one HTTP round trip without any auth handling.
// sess may be nil.
func (c *Client) send(ctx context.Context, method, path string, body any, sess *session) (*response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body for %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: building request %s %s: %w", ErrCannotConnect, method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		for _, ck := range sess.cookies {
			req.AddCookie(ck)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrCannotConnect, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %w", ErrCannotConnect, method, path, err)
	}

	return &response{
		status:  resp.StatusCode,
		body:    data,
		cookies: resp.Cookies(),
	}, nil
}

// invalidResponse wraps a decode failure so it matches both
// ErrInvalidResponse and ErrCannotConnect.
func invalidResponse(path string, err error) error {
	return fmt.Errorf("%w: %w: %s: %v", ErrCannotConnect, ErrInvalidResponse, path, err)
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}
