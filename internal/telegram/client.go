package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"receiptgen/internal/logging"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// ErrNotConfigured is returned when the bot token or group is missing.
var ErrNotConfigured = errors.New("telegram bot is not configured")

// APIError is a Bot API call that returned ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// Client calls the Bot API for one bot and one group chat.
type Client struct {
	base   string
	token  string
	chatID string
	http   *http.Client
	now    func() time.Time
	log    *logging.Logger
}

// NewClient creates a client. An empty base uses DefaultAPIBase.
func NewClient(base, token, chatID string, timeout time.Duration) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		chatID: chatID,
		http:   &http.Client{Timeout: timeout},
		now:    time.Now,
		log:    logging.Get(logging.CategoryTelegram),
	}
}

// Configured reports whether both the bot token and group chat are set.
func (c *Client) Configured() bool {
	return c != nil && c.token != "" && c.chatID != ""
}

// ChatID returns the configured group chat id.
func (c *Client) ChatID() string {
	return c.chatID
}

// BotToken returns the bot token, used to verify login widget hashes.
func (c *Client) BotToken() string {
	return c.token
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	url := c.base + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs and errors.
		return fmt.Errorf("telegram %s request failed: %w", method, redact(err, c.token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("telegram %s returned status %d: %w", method, resp.StatusCode, err)
	}
	if !ar.OK {
		apiErr := &APIError{Method: method, Code: ar.ErrorCode, Description: ar.Description}
		c.log.Warn("%v", apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(ar.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}

// GetChatMember returns the group membership record for userID.
func (c *Client) GetChatMember(ctx context.Context, userID int64) (ChatMember, error) {
	var m ChatMember
	err := c.call(ctx, "getChatMember", map[string]any{"chat_id": c.chatID, "user_id": userID}, &m)
	return m, err
}

// IsGroupMember reports whether userID is an active member of the group.
func (c *Client) IsGroupMember(ctx context.Context, userID int64) (bool, error) {
	m, err := c.GetChatMember(ctx, userID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			// Unknown users come back as API errors; they are simply not members.
			return false, nil
		}
		return false, err
	}
	return m.IsMember(), nil
}

// GetChatAdministrators lists the group's administrators.
func (c *Client) GetChatAdministrators(ctx context.Context) ([]ChatMember, error) {
	var admins []ChatMember
	err := c.call(ctx, "getChatAdministrators", map[string]any{"chat_id": c.chatID}, &admins)
	return admins, err
}

// Members lists visible group members with bots filtered out. The Bot API
// only exposes administrators for groups.
func (c *Client) Members(ctx context.Context) ([]ChatMember, error) {
	admins, err := c.GetChatAdministrators(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ChatMember, 0, len(admins))
	for _, m := range admins {
		if !m.User.IsBot {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var u User
	err := c.call(ctx, "getMe", map[string]any{}, &u)
	return u, err
}

// GetChat returns the configured group chat.
func (c *Client) GetChat(ctx context.Context) (Chat, error) {
	var chat Chat
	err := c.call(ctx, "getChat", map[string]any{"chat_id": c.chatID}, &chat)
	return chat, err
}

// SendMessage posts an HTML formatted message to the group.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}, nil)
}

// NotifyLogin announces a login in the group.
func (c *Client) NotifyLogin(ctx context.Context, u User) error {
	msg := fmt.Sprintf("🔐 <b>Login Alert</b>\n\n%s has logged into the Tuition Receipt Generator.\n\n<i>Time: %s</i>",
		html.EscapeString(u.DisplayName()), c.now().Format("02/01/2006, 15:04:05"))
	return c.SendMessage(ctx, msg)
}

// ConfigStatus is the result of ValidateConfig.
type ConfigStatus struct {
	Bot  User `json:"botInfo"`
	Chat Chat `json:"chatInfo"`
}

// ValidateConfig checks the bot token and that the bot can see the group.
func (c *Client) ValidateConfig(ctx context.Context) (ConfigStatus, error) {
	bot, err := c.GetMe(ctx)
	if err != nil {
		return ConfigStatus{}, fmt.Errorf("invalid bot token: %w", err)
	}
	chat, err := c.GetChat(ctx)
	if err != nil {
		return ConfigStatus{}, fmt.Errorf("cannot access the specified group, make sure the bot is added to it: %w", err)
	}
	return ConfigStatus{Bot: bot, Chat: chat}, nil
}
