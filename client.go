package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// AuthScheme is the credential scheme attached to outgoing requests.
const AuthScheme = "Bearer"

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	bearer    string
	hasBearer bool
	skipAuth  bool
}

// WithBearerToken overrides the stored credential for this request only.
// Requests with an explicit bearer are never refreshed or retried; the
// caller owns the credential.
func WithBearerToken(token string) RequestOption {
	return func(o *requestOptions) {
		o.bearer = token
		o.hasBearer = true
	}
}

// WithoutAuth sends the request unauthenticated even when credentials exist.
func WithoutAuth() RequestOption {
	return func(o *requestOptions) {
		o.skipAuth = true
	}
}

// Response is the decoded-agnostic result of a request. Non-2xx responses are
// returned as values, not errors; classification happens at the call site.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(out any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to decode response body")
	}
	return nil
}

// Fields extracts a field -> message map from an error response body. The
// backend reports validation problems either as {"field": ["msg", ...]} or
// {"detail": "msg"}; both shapes collapse into the same map.
func (r *Response) Fields() map[string]string {
	if len(r.Body) == 0 {
		return nil
	}

	raw := map[string]any{}
	if err := json.Unmarshal(r.Body, &raw); err != nil {
		return nil
	}

	out := map[string]string{}
	for field, val := range raw {
		switch v := val.(type) {
		case string:
			out[field] = v
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					out[field] = s
				}
			}
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Detail returns the backend's human-readable error message, if any.
func (r *Response) Detail() string {
	fields := r.Fields()
	if fields == nil {
		return ""
	}
	return fields["detail"]
}

// Client issues HTTP requests against the portal API with automatic
// credential attachment and a one-shot coalesced refresh-and-retry on 401.
type Client struct {
	baseURL     string
	refreshPath string
	loginRoute  string

	http       *http.Client
	store      TokenStore
	logger     Logger
	redirector Redirector
	debug      bool

	// onSessionExpired is the in-app signal; the Session registers itself
	// here so an unrecoverable refresh tears down session state too.
	onSessionExpired func()

	mu       sync.Mutex
	inflight *refreshCall
}

// refreshCall is the shared pending-operation handle that coalesces
// concurrent refresh attempts: the first failing caller performs the
// exchange, everyone else awaits its outcome.
type refreshCall struct {
	done chan struct{}
	err  error
}

// NewClient returns a Client backed by the given store.
func NewClient(cfg *Config, store TokenStore) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:          strings.TrimSuffix(cfg.BaseURL, "/"),
		refreshPath:      cfg.RefreshPath,
		loginRoute:       cfg.LoginRoute,
		http:             &http.Client{Timeout: timeout},
		store:            store,
		logger:           defLogger{},
		redirector:       NoopRedirector{},
		debug:            cfg.Debug,
		onSessionExpired: func() {},
	}
}

// WithLogger overrides the default stdout logger.
func (c *Client) WithLogger(logger Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithHTTPClient swaps the underlying transport (tests, custom TLS).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.http = hc
	}
	return c
}

// WithRedirector installs the hard-navigation fallback used when the session
// expires outside the reactive tree.
func (c *Client) WithRedirector(r Redirector) *Client {
	if r != nil {
		c.redirector = r
	}
	return c
}

// OnSessionExpired registers the in-app expiry signal. Last registration
// wins; the Session installs itself during construction.
func (c *Client) OnSessionExpired(fn func()) {
	if fn != nil {
		c.onSessionExpired = fn
	}
}

// Do sends a request and returns the response. Transport failures surface as
// NetworkFailure errors; HTTP error statuses come back as Response values.
//
// Credential handling: the stored access token is attached as a Bearer
// header. A stored token that already carries an expired exp claim triggers
// a refresh before the request is sent, skipping a doomed round trip. A 401
// answer triggers at most one refresh and one replay; requests that opted
// out of stored credentials are never refreshed.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	options := &requestOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	token, managed, err := c.resolveToken(ctx, options)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || !managed {
		return resp, nil
	}

	// One refresh, one replay. Concurrent 401s share a single exchange.
	if err := c.refresh(ctx); err != nil {
		return resp, err
	}

	pair, err := c.store.Load(ctx)
	if err != nil || pair == nil {
		return resp, ErrSessionExpired
	}

	c.logger.Debug("replaying %s %s with refreshed credential", method, path)
	return c.send(ctx, method, path, payload, pair.Access)
}

// DoJSON sends a request and decodes a successful response into out. Error
// statuses are classified into the AuthError taxonomy.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	resp, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}

	if !resp.OK() {
		return c.ErrorFromResponse(resp)
	}

	if out == nil {
		return nil
	}

	if c.debug {
		c.logger.Debug("response %s %s: %s", method, path, print.MaybePrettyJSON(json.RawMessage(resp.Body)))
	}

	return resp.Decode(out)
}

// ErrorFromResponse maps an HTTP error status onto the typed taxonomy.
func (c *Client) ErrorFromResponse(resp *Response) error {
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return NewValidationError(resp.Fields())
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidCredentials
	default:
		return goerrors.New("unexpected backend response", goerrors.CategoryInternal).
			WithTextCode(TextCodeUnknown).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{
				"status": resp.StatusCode,
				"detail": resp.Detail(),
			})
	}
}

// resolveToken picks the credential for a request. managed reports whether
// the token came from the store, which is what makes refresh-and-retry legal.
func (c *Client) resolveToken(ctx context.Context, options *requestOptions) (string, bool, error) {
	if options.skipAuth {
		return "", false, nil
	}
	if options.hasBearer {
		return options.bearer, false, nil
	}

	pair, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("token store read failed: %v", err)
		return "", false, nil
	}
	if pair == nil || !pair.HasAccess() {
		return "", false, nil
	}

	// Pre-empt requests doomed by an already-expired access token.
	if IsExpired(pair.Access, time.Now()) && pair.HasRefresh() {
		if err := c.refresh(ctx); err != nil {
			return "", false, err
		}
		if pair, err = c.store.Load(ctx); err != nil || pair == nil {
			return "", false, ErrSessionExpired
		}
	}

	return pair.Access, true, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", AuthScheme+" "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, WrapNetworkError(err, "request to "+path+" failed")
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, WrapNetworkError(err, "unable to read response from "+path)
	}

	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
	}, nil
}

// refresh exchanges the stored refresh token for a new access token exactly
// once per expiry event, no matter how many callers hit 401 concurrently.
func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return WrapNetworkError(ctx.Err(), "refresh interrupted")
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	call.err = c.doRefresh(ctx)
	close(call.done)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()

	return call.err
}

func (c *Client) doRefresh(ctx context.Context) error {
	pair, err := c.store.Load(ctx)
	if err != nil || pair == nil || !pair.HasRefresh() {
		c.logger.Info("no refresh token available, expiring session")
		c.expireSession(ctx)
		return ErrSessionExpired
	}

	payload, err := encodeBody(map[string]string{"refresh": pair.Refresh})
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, http.MethodPost, c.refreshPath, payload, "")
	if err != nil {
		// Transport failure is not proof the refresh token is dead; keep
		// the credentials and let the caller retry.
		return err
	}

	if !resp.OK() {
		c.logger.Info("refresh exchange rejected with status %d, expiring session", resp.StatusCode)
		c.expireSession(ctx)
		return ErrSessionExpired
	}

	refreshed := TokenPair{}
	if err := resp.Decode(&refreshed); err != nil {
		c.expireSession(ctx)
		return ErrSessionExpired
	}

	if !refreshed.HasAccess() {
		c.expireSession(ctx)
		return ErrSessionExpired
	}

	// The backend may rotate the refresh token; keep the old one otherwise.
	if !refreshed.HasRefresh() {
		refreshed.Refresh = pair.Refresh
	}

	if err := c.store.Save(ctx, refreshed); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to persist refreshed tokens")
	}

	return nil
}

// expireSession is the unrecoverable-failure path: wipe credentials, fire the
// in-app signal, and hard-navigate to login as the last-resort fallback.
func (c *Client) expireSession(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("unable to clear token store: %v", err)
	}
	if err := c.store.ClearUser(ctx); err != nil {
		c.logger.Error("unable to clear cached user: %v", err)
	}

	c.onSessionExpired()
	c.redirector.Redirect(c.loginRoute)
}

func (c *Client) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.([]byte); ok {
		return raw, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to encode request body")
	}
	return data, nil
}
