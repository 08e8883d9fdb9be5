package geminiwebapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultConversation is the implicit conversation key used when Ask is
// called without a name.
const DefaultConversation = "default"

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticating
	stateActive
	stateReauthenticating
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateAuthenticating:
		return "authenticating"
	case stateActive:
		return "active"
	case stateReauthenticating:
		return "reauthenticating"
	case stateFailed:
		return "failed"
	default:
		return "unauthenticated"
	}
}

// conversation serializes turns for one conversation name. The lock spans a
// whole turn so a second concurrent turn always threads off the first's
// applied continuation ids.
type conversation struct {
	mu   sync.Mutex
	meta ConversationMeta
}

// GeminiClient is the protocol session engine. It owns one credential pair
// and its rotating token; independent sessions in one process are separate
// GeminiClient values.
type GeminiClient struct {
	endpoints Endpoints
	proxy     string
	insecure  bool
	timeout   time.Duration
	model     Model
	gem       string

	tokens *tokenStore

	// authMu guards cookies, accessToken, state and the http client.
	authMu      sync.Mutex
	cookies     map[string]string
	accessToken string
	state       sessionState
	httpClient  *http.Client

	convMu        sync.Mutex
	convs         map[string]*conversation
	convStorePath string

	snapshotPath string

	maxAttempts int
	retryDelay  time.Duration
}

// Option configures a GeminiClient.
type Option func(*GeminiClient)

func WithProxy(proxyURL string) Option {
	return func(c *GeminiClient) { c.proxy = proxyURL }
}

// WithInsecureTLS disables TLS verification on outbound requests.
func WithInsecureTLS(insecure bool) Option {
	return func(c *GeminiClient) { c.insecure = insecure }
}

func WithTimeout(d time.Duration) Option {
	return func(c *GeminiClient) { c.timeout = d }
}

func WithModel(m Model) Option {
	return func(c *GeminiClient) { c.model = m }
}

// WithGem attaches a gem (system-prompt persona) id to every turn.
func WithGem(id string) Option {
	return func(c *GeminiClient) { c.gem = id }
}

// WithEndpoints overrides the service endpoint set (mirrors, tests).
func WithEndpoints(e Endpoints) Option {
	return func(c *GeminiClient) { c.endpoints = e }
}

// WithConversationStore persists continuation ids to a bolt file after every
// successful turn.
func WithConversationStore(path string) Option {
	return func(c *GeminiClient) { c.convStorePath = path }
}

// WithCookieSnapshot persists rotated cookies next to the credential file so
// a restarted process resumes without re-rotating.
func WithCookieSnapshot(credentialPath string) Option {
	return func(c *GeminiClient) { c.snapshotPath = credentialPath }
}

// WithRetry bounds transient-failure retries. Delay grows linearly per
// attempt.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *GeminiClient) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// NewGeminiClient creates a session engine for one credential pair. Both
// cookies are required; their absence surfaces on Init as
// AuthError(AuthMissingCredential).
func NewGeminiClient(secure1psid, secure1psidts string, opts ...Option) *GeminiClient {
	c := &GeminiClient{
		endpoints:   DefaultEndpoints(),
		timeout:     300 * time.Second,
		model:       ModelUnspecified,
		cookies:     map[string]string{},
		convs:       map[string]*conversation{},
		maxAttempts: 3,
		retryDelay:  time.Second,
	}
	if secure1psid != "" {
		c.cookies[CookiePSID] = secure1psid
		if secure1psidts != "" {
			c.cookies[CookiePSIDTS] = secure1psidts
		}
	}
	for _, f := range opts {
		f(c)
	}
	c.tokens = &tokenStore{endpoints: c.endpoints, proxy: c.proxy, insecure: c.insecure}
	return c
}

// Init authenticates the session: it scrapes the rotating token from the
// front page and prepares the request client. Safe to call concurrently;
// only the first caller does the work.
func (c *GeminiClient) Init(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.initLocked(ctx)
}

func (c *GeminiClient) initLocked(ctx context.Context) error {
	if c.state == stateActive {
		return nil
	}
	if _, ok := c.cookies[CookiePSID]; !ok {
		c.state = stateFailed
		return &AuthError{Reason: AuthMissingCredential, Msg: CookiePSID + " is required"}
	}
	c.state = stateAuthenticating

	base := copyCookies(c.cookies)
	if c.snapshotPath != "" {
		if snap, ok, err := ReadCookieSnapshot(c.snapshotPath); err == nil && ok {
			// Snapshot cookies fill gaps; explicit credentials win.
			for k, v := range snap {
				if _, exists := base[k]; !exists {
					base[k] = v
				}
			}
		}
	}

	token, validCookies, err := c.tokens.fetch(ctx, base)
	if err != nil {
		c.state = stateUnauthenticated
		return err
	}
	c.accessToken = token
	c.cookies = validCookies
	c.httpClient = newHTTPClient(httpOptions{ProxyURL: c.proxy, Insecure: c.insecure, FollowRedirects: true, Timeout: c.timeout})
	c.state = stateActive
	c.persistCookieSnapshot()
	log.Debug("Gemini client initialized successfully.")
	return nil
}

func (c *GeminiClient) ensureActive(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	switch c.state {
	case stateActive:
		return nil
	case stateFailed:
		return &AuthError{Reason: AuthSessionExpired, Msg: "session is in failed state; create a new client"}
	default:
		return c.initLocked(ctx)
	}
}

func (c *GeminiClient) setState(s sessionState) {
	c.authMu.Lock()
	c.state = s
	c.authMu.Unlock()
}

// State reports the session engine state as a string, for logging.
func (c *GeminiClient) State() string {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.state.String()
}

// Cookies returns a copy of the current cookie set. Generated-image saves
// outside a decoded response may need it.
func (c *GeminiClient) Cookies() map[string]string {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return copyCookies(c.cookies)
}

// SetCredentials replaces the credential pair and forces reauthentication on
// the next turn. Used by the credential-file watcher.
func (c *GeminiClient) SetCredentials(secure1psid, secure1psidts string) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.cookies = map[string]string{}
	if secure1psid != "" {
		c.cookies[CookiePSID] = secure1psid
		if secure1psidts != "" {
			c.cookies[CookiePSIDTS] = secure1psidts
		}
	}
	c.accessToken = ""
	c.state = stateUnauthenticated
}

func (c *GeminiClient) persistCookieSnapshot() {
	if c.snapshotPath == "" {
		return
	}
	if err := WriteCookieSnapshot(c.snapshotPath, c.cookies); err != nil {
		log.Warnf("failed to write cookie snapshot: %v", err)
	}
}

// Conversation access --------------------------------------------------------

func (c *GeminiClient) conversation(name string) *conversation {
	if name == "" {
		name = DefaultConversation
	}
	c.convMu.Lock()
	defer c.convMu.Unlock()
	conv, ok := c.convs[name]
	if !ok {
		conv = &conversation{}
		c.convs[name] = conv
	}
	return conv
}

// ConversationMeta returns the continuation ids last applied for a name.
// The second result is false when no such conversation exists in memory.
func (c *GeminiClient) ConversationMeta(name string) (ConversationMeta, bool) {
	if name == "" {
		name = DefaultConversation
	}
	c.convMu.Lock()
	defer c.convMu.Unlock()
	conv, ok := c.convs[name]
	if !ok {
		return ConversationMeta{}, false
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.meta, true
}

// RestoreConversation loads a named conversation from the configured store
// into memory. An unknown name yields NotFoundError; callers must not treat
// that as a fresh conversation.
func (c *GeminiClient) RestoreConversation(name string) error {
	if c.convStorePath == "" {
		return &ValueError{Msg: "no conversation store configured"}
	}
	if name == "" {
		name = DefaultConversation
	}
	meta, err := LoadConversation(c.convStorePath, name)
	if err != nil {
		return err
	}
	conv := c.conversation(name)
	conv.mu.Lock()
	conv.meta = meta
	conv.mu.Unlock()
	return nil
}

// applyTurn replaces the continuation triple atomically; the ids are never
// updated independently.
func (c *GeminiClient) applyTurn(name string, conv *conversation, meta ConversationMeta) {
	conv.meta = meta
	if c.convStorePath != "" {
		if name == "" {
			name = DefaultConversation
		}
		if err := SaveConversations(c.convStorePath, map[string]ConversationMeta{name: meta}); err != nil {
			log.Warnf("failed to persist conversation %q: %v", name, err)
		}
	}
}

// Ask ------------------------------------------------------------------------

// AskOption configures a single turn.
type AskOption func(*askConfig)

type askConfig struct {
	conversation string
	file         string
	model        *Model
}

// WithConversation threads the turn onto a named conversation.
func WithConversation(name string) AskOption {
	return func(a *askConfig) { a.conversation = name }
}

// WithFile uploads a file first and references it from the turn.
func WithFile(path string) AskOption {
	return func(a *askConfig) { a.file = path }
}

// WithAskModel overrides the client model for this turn.
func WithAskModel(m Model) AskOption {
	return func(a *askConfig) { a.model = &m }
}

// Ask sends one turn and returns the decoded output. On an auth-expired
// signal it refreshes the token exactly once and resends once; a second
// expiry fails the session. Transient network failures are retried a bounded
// number of times with increasing delay. Every successful turn updates the
// conversation's continuation ids before returning.
func (c *GeminiClient) Ask(ctx context.Context, prompt string, opts ...AskOption) (*ModelOutput, error) {
	if prompt == "" {
		return nil, &ValueError{Msg: "Prompt cannot be empty."}
	}
	var cfg askConfig
	for _, f := range opts {
		f(&cfg)
	}
	model := c.model
	if cfg.model != nil {
		model = *cfg.model
	}

	if err := c.ensureActive(ctx); err != nil {
		return nil, err
	}

	conv := c.conversation(cfg.conversation)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	turn := TurnRequest{Prompt: prompt, Meta: conv.meta, GemID: c.gem}
	if cfg.file != "" {
		id, name, err := uploadFile(ctx, c.endpoints, cfg.file, c.proxy, c.insecure)
		if err != nil {
			return nil, err
		}
		turn.UploadRef = id
		turn.UploadName = name
	}

	out, err := c.sendWithRetry(ctx, turn, model)
	var expired *AuthExpiredError
	if errors.As(err, &expired) {
		out, err = c.reauthAndResend(ctx, turn, model)
	}
	if err != nil {
		return nil, err
	}

	c.applyTurn(cfg.conversation, conv, out.Meta())
	return out, nil
}

// reauthAndResend performs the single reauthentication cycle: one serialized
// token refresh, one resend. A second expiry is terminal.
func (c *GeminiClient) reauthAndResend(ctx context.Context, turn TurnRequest, model Model) (*ModelOutput, error) {
	c.setState(stateReauthenticating)
	log.Debug("auth expired; refreshing session token")

	token, cookies, err := c.tokens.refresh(ctx, c.Cookies())
	if err != nil {
		c.setState(stateFailed)
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, &AuthError{Reason: AuthSessionExpired, Msg: fmt.Sprintf("token refresh failed: %v", err)}
	}

	c.authMu.Lock()
	c.accessToken = token
	c.cookies = cookies
	c.state = stateActive
	c.authMu.Unlock()
	c.persistCookieSnapshot()

	out, err := c.sendWithRetry(ctx, turn, model)
	var expired *AuthExpiredError
	if errors.As(err, &expired) {
		c.setState(stateFailed)
		return nil, &AuthError{Reason: AuthSessionExpired, Msg: "still expired after refresh"}
	}
	return out, err
}

// sendWithRetry retries transient network failures only. Auth, parse and
// encoding failures pass straight through; 4xx is never retried.
func (c *GeminiClient) sendWithRetry(ctx context.Context, turn TurnRequest, model Model) (*ModelOutput, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		out, err := c.doGenerate(ctx, turn, model)
		if err == nil {
			return out, nil
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) || !netErr.Transient || attempt == c.maxAttempts {
			return nil, err
		}
		lastErr = err
		delay := c.retryDelay * time.Duration(attempt)
		log.Debugf("transient failure (attempt %d/%d), retrying in %s: %v", attempt, c.maxAttempts, delay, err)
		select {
		case <-ctx.Done():
			return nil, classifyNetworkError("generate request", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// doGenerate performs one encode+send+decode cycle.
func (c *GeminiClient) doGenerate(ctx context.Context, turn TurnRequest, model Model) (*ModelOutput, error) {
	c.authMu.Lock()
	token := c.accessToken
	cookies := copyCookies(c.cookies)
	client := c.httpClient
	c.authMu.Unlock()
	if client == nil {
		return nil, &AuthError{Reason: AuthUnknown, Msg: "client not initialized"}
	}

	_, imageModel := imageGenerationModels[strings.ToLower(model.Name)]
	form, err := encodeTurn(turn, token, imageModel)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Generate, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &NetworkError{Msg: "build generate request", Err: err}
	}
	applyHeaders(req, HeadersGemini)
	applyHeaders(req, model.ModelHeader)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	applyCookies(req, cookies)

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyNetworkError("generate request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyNetworkError("read generate response", err)
	}

	// Merge Set-Cookie updates back before the next send; never dropped.
	c.authMu.Lock()
	mergeResponseCookies(c.cookies, resp)
	cookies = copyCookies(c.cookies)
	c.authMu.Unlock()

	return newDecoder(cookies, c.proxy).decode(resp.StatusCode, body)
}
