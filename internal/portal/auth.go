package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/fetch"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// State is the position of a client in the login handshake.
type State int

const (
	Unauthenticated State = iota
	CredentialSubmission
	CodeExtraction
	TokenExchange
	KeyRetrieval
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case CredentialSubmission:
		return "credential-submission"
	case CodeExtraction:
		return "code-extraction"
	case TokenExchange:
		return "token-exchange"
	case KeyRetrieval:
		return "key-retrieval"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Endpoints of the identity provider and the metering APIs.
type Endpoints struct {
	AuthURL      string
	TokenURL     string
	APIURL       string
	SeriesURL    string
	AppConfigURL string
	RedirectURL  string
	ClientID     string
}

// EndpointsFromConfig copies the portal section of the configuration.
func EndpointsFromConfig(cfg config.PortalConfig) Endpoints {
	return Endpoints{
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		APIURL:       cfg.APIURL,
		SeriesURL:    cfg.SeriesURL,
		AppConfigURL: cfg.AppConfig,
		RedirectURL:  cfg.RedirectURL,
		ClientID:     cfg.ClientID,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetryPolicy sets the retry policy used for data requests after login.
func WithRetryPolicy(p fetch.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client is an authenticated session with the smart meter portal. The login
// runs lazily on the first data call and is not repeated. A client whose
// login failed keeps returning that failure and must be replaced.
type Client struct {
	endpoints Endpoints
	email     string
	password  string
	logger    logging.Logger
	policy    fetch.Policy
	timeout   time.Duration

	follow   *http.Client
	noFollow *http.Client
	fetcher  *fetch.Fetcher

	// login serializes handshakes; mu guards the fields below and is never
	// held across a request.
	login   sync.Mutex
	mu      sync.Mutex
	state   State
	failure error
	token   string
	apiKey  string
}

// NewClient creates an unauthenticated client. No request is sent yet.
func NewClient(endpoints Endpoints, email, password string, opts ...Option) (*Client, error) {
	c := &Client{
		endpoints: endpoints,
		email:     email,
		password:  password,
		policy:    fetch.DefaultPolicy(),
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}

	follow, err := fetch.NewSessionClient(c.timeout)
	if err != nil {
		return nil, err
	}
	c.follow = follow
	c.noFollow = &http.Client{
		Jar:     follow.Jar,
		Timeout: c.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	c.fetcher = fetch.New(c.follow, c.policy, c.logger)
	return c, nil
}

// NewClientFromConfig creates a client for the configured portal.
func NewClientFromConfig(cfg config.PortalConfig, creds models.Credentials, logger logging.Logger, policy fetch.Policy) (*Client, error) {
	return NewClient(EndpointsFromConfig(cfg), creds.Email, creds.Password,
		WithLogger(logger), WithRetryPolicy(policy), WithTimeout(cfg.Timeout))
}

// State returns the current handshake state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticate runs the login handshake if it has not run yet. Concurrent
// callers wait for the first handshake and share its outcome.
func (c *Client) Authenticate(ctx context.Context) error {
	c.login.Lock()
	defer c.login.Unlock()

	if done, err := c.settled(); done {
		return err
	}

	token, apiKey, err := c.handshake(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Failed && c.failure != nil {
		// closed while logging in
		return c.failure
	}
	if err != nil {
		c.state = Failed
		c.failure = err
		c.token = ""
		c.logger.WithError(err).Warn("portal login failed")
		return err
	}
	c.token = token
	c.apiKey = apiKey
	c.state = Authenticated
	return nil
}

func (c *Client) settled() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Authenticated:
		return true, nil
	case Failed:
		return true, c.failure
	}
	return false, nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Failed {
		c.state = s
	}
}

// handshake performs the login without holding mu and returns the bearer
// token and the optional gateway key.
func (c *Client) handshake(ctx context.Context) (string, string, error) {
	if c.email == "" || c.password == "" {
		return "", "", &AuthenticationFailedError{Step: "authorize", Detail: "email and password are required"}
	}
	c.setState(Unauthenticated)
	verifier := newPKCE()
	oauthCfg := c.oauthConfig()

	authURL := oauthCfg.AuthCodeURL("",
		oauth2.SetAuthURLParam("response_mode", "fragment"),
		oauth2.SetAuthURLParam("nonce", ""),
		oauth2.SetAuthURLParam("code_challenge", verifier.challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	status, page, pageURL, _, err := c.send(ctx, c.follow, http.MethodGet, authURL, nil)
	if err != nil {
		return "", "", err
	}
	if status >= http.StatusBadRequest {
		return "", "", &ProtocolShapeError{Step: "authorize", Detail: fmt.Sprintf("status %d", status)}
	}
	firstAction, ok := formAction(page, pageURL)
	if !ok {
		return "", "", &ProtocolShapeError{Step: "authorize", Detail: "login page has no form action"}
	}

	c.setState(CredentialSubmission)
	status, page, pageURL, header, err := c.send(ctx, c.noFollow, http.MethodPost, firstAction, url.Values{
		"username": {c.email},
		"login":    {" "},
	})
	if err != nil {
		return "", "", err
	}
	secondAction := firstAction
	switch {
	case status == http.StatusOK:
		if action, ok := formAction(page, pageURL); ok {
			secondAction = action
		}
	case isRedirect(status):
		if loc := header.Get("Location"); loc != "" {
			secondAction = resolve(pageURL, loc)
		}
	}

	_, _, _, header, err = c.send(ctx, c.noFollow, http.MethodPost, secondAction, url.Values{
		"username": {c.email},
		"password": {c.password},
	})
	if err != nil {
		return "", "", err
	}

	c.setState(CodeExtraction)
	location := header.Get("Location")
	if location == "" {
		return "", "", &AuthenticationFailedError{Step: "login", Detail: "no redirect after password, wrong credentials or two-factor login"}
	}
	code, ok := fragmentCode(location)
	if !ok {
		return "", "", &AuthenticationFailedError{Step: "login", Detail: "redirect carries no authorization code"}
	}

	c.setState(TokenExchange)
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, c.noFollow)
	token, err := oauthCfg.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier.verifier))
	if err != nil {
		return "", "", classifyExchangeError(c.endpoints.TokenURL, err)
	}
	if token.AccessToken == "" {
		return "", "", &ProtocolShapeError{Step: "token", Detail: "response has no access_token"}
	}
	c.logger.WithField("expires", token.Expiry).Info("portal login succeeded")

	c.setState(KeyRetrieval)
	return token.AccessToken, c.fetchAPIKey(ctx, token.AccessToken), nil
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.endpoints.ClientID,
		RedirectURL: c.endpoints.RedirectURL,
		Scopes:      []string{"openid"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.endpoints.AuthURL,
			TokenURL:  c.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// fetchAPIKey reads the gateway key from the web app config. Failures only log.
func (c *Client) fetchAPIKey(ctx context.Context, token string) string {
	if c.endpoints.AppConfigURL == "" {
		return ""
	}
	resp, err := c.fetcher.Get(ctx, c.endpoints.AppConfigURL, fetch.Options{
		Header: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		c.logger.WithError(err).Warn("could not load portal app config, continuing without gateway key")
		return ""
	}
	var appConfig struct {
		B2CAPIKey string `json:"b2cApiKey"`
	}
	if err := resp.DecodeJSON(&appConfig); err != nil || appConfig.B2CAPIKey == "" {
		c.logger.Warn("portal app config has no b2cApiKey, continuing without gateway key")
		return ""
	}
	return appConfig.B2CAPIKey
}

// send performs one handshake request. The handshake is never retried.
func (c *Client) send(ctx context.Context, hc *http.Client, method, target string, form url.Values) (int, []byte, *url.URL, http.Header, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, nil, nil, &ProtocolShapeError{Step: "request", Detail: err.Error()}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, nil, nil, ctx.Err()
		}
		return 0, nil, nil, nil, &fetch.UnreachableError{URL: req.URL.Redacted(), Attempts: 1, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, nil, &fetch.UnreachableError{URL: req.URL.Redacted(), Attempts: 1, Err: err}
	}
	return resp.StatusCode, data, resp.Request.URL, resp.Header, nil
}

func classifyExchangeError(tokenURL string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		detail := retrieve.ErrorCode
		if detail == "" && retrieve.Response != nil {
			detail = retrieve.Response.Status
		}
		if retrieve.Response != nil && retrieve.Response.StatusCode >= http.StatusInternalServerError {
			return &fetch.UnreachableError{URL: tokenURL, Attempts: 1, Status: retrieve.Response.StatusCode}
		}
		return &AuthenticationFailedError{Step: "token", Detail: "code exchange rejected: " + detail}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &fetch.UnreachableError{URL: tokenURL, Attempts: 1, Err: err}
	}
	return &ProtocolShapeError{Step: "token", Detail: err.Error()}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// GetJSON performs an authenticated GET against base+path and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, base, path string, query url.Values, out any) error {
	if err := c.Authenticate(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	header := http.Header{"Authorization": {"Bearer " + c.token}}
	if c.apiKey != "" {
		header.Set("X-Gateway-APIKey", c.apiKey)
	}
	c.mu.Unlock()

	target := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	resp, err := c.fetcher.Get(ctx, target, fetch.Options{Query: query, Header: header})
	if err != nil {
		return fmt.Errorf("portal get %s: %w", path, err)
	}
	return resp.DecodeJSON(out)
}

// Close drops the session. The client cannot be used afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.apiKey = ""
	if c.state != Failed {
		c.state = Failed
		c.failure = errors.New("portal client closed")
	}
	c.follow.CloseIdleConnections()
}
