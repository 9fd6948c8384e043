package access

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"receiptgen/internal/logging"
	"receiptgen/internal/telegram"

	"golang.org/x/sync/singleflight"
)

// State is the login state of a Client.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// ErrBusy is returned when a login is attempted while another is in flight.
var ErrBusy = errors.New("a login is already in progress")

// TelegramConfig is the public part of the server's Telegram setup. It never
// carries the bot token.
type TelegramConfig struct {
	Configured       bool   `json:"configured"`
	BotUsername      string `json:"botUsername,omitempty"`
	GroupChatID      string `json:"groupChatId,omitempty"`
	EmergencyEnabled bool   `json:"emergencyEnabled"`
}

// LoginResponse is the body of a successful /api/auth login.
type LoginResponse struct {
	Token     string        `json:"token"`
	User      telegram.User `json:"user"`
	Method    string        `json:"method"`
	AuthDate  int64         `json:"authDate"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// NewLoginResponse renders an issued session for the wire.
func NewLoginResponse(s *Session) LoginResponse {
	return LoginResponse{
		Token:     s.Token,
		User:      s.Claims.User,
		Method:    s.Claims.Method,
		AuthDate:  s.Claims.AuthDate,
		ExpiresAt: s.Claims.Expiry(),
	}
}

// RemoteError is a non-2xx answer from the server.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// RemoteMembership talks to a running receiptgen server's membership and
// auth endpoints.
type RemoteMembership struct {
	base string
	http *http.Client
}

// NewRemoteMembership creates a client for the server at base.
func NewRemoteMembership(base string, timeout time.Duration) *RemoteMembership {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteMembership{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Base returns the server URL.
func (r *RemoteMembership) Base() string {
	return r.base
}

func (r *RemoteMembership) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Config fetches GET /api/telegram/config.
func (r *RemoteMembership) Config(ctx context.Context) (TelegramConfig, error) {
	var cfg TelegramConfig
	err := r.do(ctx, http.MethodGet, "/api/telegram/config", "", nil, &cfg)
	return cfg, err
}

// VerifyMember asks the server whether userID is a group member.
func (r *RemoteMembership) VerifyMember(ctx context.Context, userID int64) (bool, error) {
	var out struct {
		IsMember bool `json:"isMember"`
	}
	err := r.do(ctx, http.MethodPost, "/api/telegram/verify-member", "", map[string]int64{"userId": userID}, &out)
	return out.IsMember, err
}

// UsernameLookup resolves a username to a group member.
func (r *RemoteMembership) UsernameLookup(ctx context.Context, username string) (telegram.User, error) {
	var out struct {
		User telegram.User `json:"user"`
	}
	err := r.do(ctx, http.MethodPost, "/api/telegram/username-login", "", map[string]string{"username": username}, &out)
	return out.User, err
}

// GroupMembers lists visible group members.
func (r *RemoteMembership) GroupMembers(ctx context.Context, token string) ([]telegram.ChatMember, error) {
	var out struct {
		Members []telegram.ChatMember `json:"members"`
	}
	err := r.do(ctx, http.MethodGet, "/api/telegram/group-members", token, nil, &out)
	return out.Members, err
}

func (r *RemoteMembership) login(ctx context.Context, path string, in any) (LoginResponse, error) {
	var out LoginResponse
	err := r.do(ctx, http.MethodPost, path, "", in, &out)
	return out, err
}

// Me returns the user behind token.
func (r *RemoteMembership) Me(ctx context.Context, token string) (telegram.User, error) {
	var out struct {
		User telegram.User `json:"user"`
	}
	err := r.do(ctx, http.MethodGet, "/api/auth/me", token, nil, &out)
	return out.User, err
}

// Logout revokes token on the server.
func (r *RemoteMembership) Logout(ctx context.Context, token string) error {
	return r.do(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil)
}

// Client is the per-user login state machine. It persists the session token
// in a file so separate CLI invocations share one login.
type Client struct {
	remote    *RemoteMembership
	tokenFile string
	now       func() time.Time
	log       *logging.Logger

	mu      sync.Mutex
	state   State
	session *LoginResponse

	sf    singleflight.Group
	cfgMu sync.Mutex
	cfg   *TelegramConfig
}

// NewClient creates a client. An empty tokenFile keeps the session in memory.
func NewClient(remote *RemoteMembership, tokenFile string) *Client {
	return &Client{
		remote:    remote,
		tokenFile: tokenFile,
		now:       time.Now,
		log:       logging.Get(logging.CategoryAccess),
	}
}

// Mode fetches the server's Telegram config, once per client on success.
// An unreachable or unconfigured membership service puts the client in
// ModeEmergency.
func (c *Client) Mode(ctx context.Context) (Mode, TelegramConfig) {
	c.cfgMu.Lock()
	if c.cfg != nil {
		defer c.cfgMu.Unlock()
		return modeOf(*c.cfg), *c.cfg
	}
	c.cfgMu.Unlock()

	v, err, _ := c.sf.Do("config", func() (interface{}, error) {
		cfg, err := c.remote.Config(ctx)
		if err != nil {
			return nil, err
		}
		c.cfgMu.Lock()
		c.cfg = &cfg
		c.cfgMu.Unlock()
		return cfg, nil
	})
	if err != nil {
		c.log.Warn("membership service unreachable at %s: %v", c.remote.Base(), err)
		return ModeEmergency, TelegramConfig{}
	}
	cfg := v.(TelegramConfig)
	return modeOf(cfg), cfg
}

func modeOf(cfg TelegramConfig) Mode {
	if !cfg.Configured {
		return ModeEmergency
	}
	return ModeTelegram
}

// State returns the current state. An authenticated session past its
// expiry moves back to Unauthenticated.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	c.expireLocked()
	return c.state
}

// Session returns the active session, if any.
func (c *Client) Session() (LoginResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	c.expireLocked()
	if c.state != Authenticated {
		return LoginResponse{}, false
	}
	return *c.session, true
}

// Token returns the active session token or "".
func (c *Client) Token() string {
	s, ok := c.Session()
	if !ok {
		return ""
	}
	return s.Token
}

// LoginWidget logs in with a Telegram login widget payload.
func (c *Client) LoginWidget(ctx context.Context, d telegram.LoginData) (LoginResponse, error) {
	return c.login(ctx, ModeTelegram, "/api/auth/telegram", d)
}

// LoginUsername logs in with a Telegram username.
func (c *Client) LoginUsername(ctx context.Context, username string) (LoginResponse, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	return c.login(ctx, ModeTelegram, "/api/auth/username", map[string]string{"username": username})
}

// LoginEmergency logs in with the emergency credential. It works in both
// modes.
func (c *Client) LoginEmergency(ctx context.Context, username, password string) (LoginResponse, error) {
	return c.login(ctx, ModeEmergency, "/api/auth/emergency", map[string]string{"username": username, "password": password})
}

func (c *Client) login(ctx context.Context, needs Mode, path string, in any) (LoginResponse, error) {
	if needs == ModeTelegram {
		if mode, _ := c.Mode(ctx); mode == ModeEmergency {
			return LoginResponse{}, ErrUnavailable
		}
	}

	c.mu.Lock()
	if c.state == Authenticating {
		c.mu.Unlock()
		return LoginResponse{}, ErrBusy
	}
	c.state = Authenticating
	c.mu.Unlock()

	resp, err := c.remote.login(ctx, path, in)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Unauthenticated
		c.session = nil
		return LoginResponse{}, err
	}
	c.session = &resp
	c.state = Authenticated
	if err := c.saveLocked(); err != nil {
		c.log.Warn("could not persist session: %v", err)
	}
	c.log.Info("logged in as %s", resp.User.DisplayName())
	return resp, nil
}

// Logout revokes the session on the server and forgets it locally. The
// local session is dropped even when the server cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	token := c.Token()
	var err error
	if token != "" {
		err = c.remote.Logout(ctx, token)
	}
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
	return err
}

// Me asks the server who the current session belongs to. A rejected session
// is cleared.
func (c *Client) Me(ctx context.Context) (telegram.User, error) {
	token := c.Token()
	if token == "" {
		return telegram.User{}, ErrInvalidSession
	}
	u, err := c.remote.Me(ctx, token)
	var re *RemoteError
	if errors.As(err, &re) && re.Status == http.StatusUnauthorized {
		c.mu.Lock()
		c.clearLocked()
		c.mu.Unlock()
	}
	return u, err
}

func (c *Client) expiry(s *LoginResponse) time.Time {
	limit := time.Unix(s.AuthDate, 0).Add(SessionLifetime)
	if !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(limit) {
		return s.ExpiresAt
	}
	return limit
}

func (c *Client) expireLocked() {
	if c.state != Authenticated || c.session == nil {
		return
	}
	if !c.now().Before(c.expiry(c.session)) {
		c.log.Info("session for %s expired", c.session.User.DisplayName())
		c.clearLocked()
	}
}

func (c *Client) clearLocked() {
	c.state = Unauthenticated
	c.session = nil
	if c.tokenFile != "" {
		if err := os.Remove(c.tokenFile); err != nil && !os.IsNotExist(err) {
			c.log.Warn("could not remove session file: %v", err)
		}
	}
}

// loadLocked reads the session file on first use.
func (c *Client) loadLocked() {
	if c.session != nil || c.state == Authenticating || c.tokenFile == "" {
		return
	}
	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		return
	}
	var s LoginResponse
	if err := json.Unmarshal(data, &s); err != nil || s.Token == "" {
		c.log.Warn("ignoring unreadable session file %s", c.tokenFile)
		return
	}
	c.session = &s
	c.state = Authenticated
}

func (c *Client) saveLocked() error {
	if c.tokenFile == "" {
		return nil
	}
	data, err := json.Marshal(c.session)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.tokenFile), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.tokenFile, data, 0o600)
}
