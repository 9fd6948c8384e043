package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"receiptgen/internal/config"
	"receiptgen/internal/logging"
	"receiptgen/internal/store"
	"receiptgen/internal/telegram"

	"golang.org/x/crypto/bcrypt"
)

// Mode says which logins a gate accepts.
type Mode int

const (
	// ModeTelegram accepts Telegram logins (and the emergency credential
	// when configured).
	ModeTelegram Mode = iota
	// ModeEmergency is used when the membership service is unavailable;
	// only the emergency credential is accepted.
	ModeEmergency
)

func (m Mode) String() string {
	if m == ModeEmergency {
		return "emergency"
	}
	return "telegram"
}

var (
	// ErrInvalidLogin is returned when login data is incomplete or forged.
	ErrInvalidLogin = errors.New("invalid authentication data")
	// ErrNotMember is returned when the user is not in the authorized group.
	ErrNotMember = errors.New("you are not a member of the authorized group; please join the group first")
	// ErrUnknownUsername is returned when a username cannot be resolved.
	ErrUnknownUsername = errors.New("username not found among group members")
	// ErrBadCredentials is returned for a wrong emergency credential.
	ErrBadCredentials = errors.New("invalid username or password")
	// ErrEmergencyDisabled is returned when no emergency credential is set.
	ErrEmergencyDisabled = errors.New("emergency access is disabled")
	// ErrUnavailable is returned for Telegram logins in ModeEmergency.
	ErrUnavailable = errors.New("telegram login is unavailable")
)

// Membership is the Telegram group the gate checks against.
type Membership interface {
	Configured() bool
	BotToken() string
	IsGroupMember(ctx context.Context, userID int64) (bool, error)
	GetChatAdministrators(ctx context.Context) ([]telegram.ChatMember, error)
	NotifyLogin(ctx context.Context, u telegram.User) error
}

// Users persists known users and revoked sessions. *store.Store satisfies it.
type Users interface {
	RememberUser(ctx context.Context, u store.KnownUser) error
	FindUserByUsername(ctx context.Context, username string) (store.KnownUser, error)
	RevokeSession(ctx context.Context, id string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// GateOptions configures a Gate.
type GateOptions struct {
	JWTSecret             string
	SessionTTL            time.Duration
	EmergencyUsername     string
	EmergencyPasswordHash string
	NotifyLogins          bool
}

// GateOptionsFromConfig maps the access config onto gate options.
func GateOptionsFromConfig(cfg *config.Config) GateOptions {
	return GateOptions{
		JWTSecret:             cfg.Access.JWTSecret,
		SessionTTL:            cfg.GetSessionTTL(),
		EmergencyUsername:     cfg.Access.EmergencyUsername,
		EmergencyPasswordHash: cfg.Access.EmergencyPasswordHash,
		NotifyLogins:          cfg.Telegram.NotifyLogins,
	}
}

// Gate verifies logins and sessions on the server.
type Gate struct {
	opts       GateOptions
	issuer     *Issuer
	membership Membership
	users      Users
	mode       Mode
	log        *logging.Logger
	now        func() time.Time
}

// NewGate creates a gate. Without a configured membership service the gate
// runs in ModeEmergency.
func NewGate(opts GateOptions, membership Membership, users Users) (*Gate, error) {
	iss, err := NewIssuer(opts.JWTSecret, opts.SessionTTL)
	if err != nil {
		return nil, err
	}
	g := &Gate{
		opts:       opts,
		issuer:     iss,
		membership: membership,
		users:      users,
		mode:       ModeTelegram,
		log:        logging.Get(logging.CategoryAccess),
		now:        time.Now,
	}
	if membership == nil || !membership.Configured() {
		g.mode = ModeEmergency
		g.log.Warn("telegram membership is not configured; gate running in emergency mode")
	}
	if g.EmergencyEnabled() {
		g.log.Warn("emergency access credential is enabled for user %q", opts.EmergencyUsername)
	}
	return g, nil
}

// Mode returns the gate's mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

// EmergencyEnabled reports whether an emergency credential is configured.
func (g *Gate) EmergencyEnabled() bool {
	return g.opts.EmergencyUsername != "" && g.opts.EmergencyPasswordHash != ""
}

func (g *Gate) setNow(now func() time.Time) {
	g.now = now
	g.issuer.now = now
}

// LoginWidget verifies a Telegram login widget payload and group membership.
func (g *Gate) LoginWidget(ctx context.Context, d telegram.LoginData) (*Session, error) {
	if g.mode == ModeEmergency {
		return nil, ErrUnavailable
	}
	if err := telegram.VerifyLogin(g.membership.BotToken(), d); err != nil {
		g.log.Warn("rejected widget login for user %d: %v", d.ID, err)
		return nil, ErrInvalidLogin
	}
	authTime := time.Unix(d.AuthDate, 0)
	if g.now().Sub(authTime) >= g.issuer.ttl {
		return nil, ErrSessionExpired
	}
	if err := g.checkMember(ctx, d.ID); err != nil {
		return nil, err
	}
	return g.complete(ctx, d.User(), MethodTelegram, authTime)
}

// LoginUsername resolves a username among group administrators and users
// seen before, then verifies membership.
func (g *Gate) LoginUsername(ctx context.Context, username string) (*Session, error) {
	if g.mode == ModeEmergency {
		return nil, ErrUnavailable
	}
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, ErrInvalidLogin
	}

	user, err := g.resolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := g.checkMember(ctx, user.ID); err != nil {
		return nil, err
	}
	return g.complete(ctx, user, MethodUsername, g.now())
}

func (g *Gate) resolveUsername(ctx context.Context, username string) (telegram.User, error) {
	admins, err := g.membership.GetChatAdministrators(ctx)
	if err != nil {
		g.log.Warn("could not list group administrators: %v", err)
	}
	for _, m := range admins {
		if !m.User.IsBot && strings.EqualFold(m.User.Username, username) {
			return m.User, nil
		}
	}

	if g.users != nil {
		known, err := g.users.FindUserByUsername(ctx, username)
		if err == nil {
			return telegram.User{ID: known.ID, Username: known.Username, FirstName: known.FirstName, LastName: known.LastName}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return telegram.User{}, fmt.Errorf("lookup username: %w", err)
		}
	}
	return telegram.User{}, ErrUnknownUsername
}

// LoginEmergency checks the emergency credential.
func (g *Gate) LoginEmergency(ctx context.Context, username, password string) (*Session, error) {
	if !g.EmergencyEnabled() {
		return nil, ErrEmergencyDisabled
	}
	if !strings.EqualFold(strings.TrimSpace(username), g.opts.EmergencyUsername) ||
		bcrypt.CompareHashAndPassword([]byte(g.opts.EmergencyPasswordHash), []byte(password)) != nil {
		g.log.Warn("failed emergency login for %q", username)
		return nil, ErrBadCredentials
	}
	g.log.Warn("emergency login used by %q", g.opts.EmergencyUsername)
	user := telegram.User{FirstName: g.opts.EmergencyUsername, Username: g.opts.EmergencyUsername}
	return g.issue(user, MethodEmergency, g.now())
}

func (g *Gate) checkMember(ctx context.Context, userID int64) error {
	ok, err := g.membership.IsGroupMember(ctx, userID)
	if err != nil {
		g.log.Error("membership check for %d failed: %v", userID, err)
		return fmt.Errorf("verify membership: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func (g *Gate) complete(ctx context.Context, user telegram.User, method string, authTime time.Time) (*Session, error) {
	if g.users != nil {
		if err := g.users.RememberUser(ctx, store.KnownUser{
			ID: user.ID, Username: user.Username, FirstName: user.FirstName, LastName: user.LastName,
		}); err != nil {
			g.log.Warn("could not remember user %d: %v", user.ID, err)
		}
	}
	if g.opts.NotifyLogins {
		if err := g.membership.NotifyLogin(ctx, user); err != nil {
			g.log.Warn("login notification failed: %v", err)
		}
	}
	return g.issue(user, method, authTime)
}

func (g *Gate) issue(user telegram.User, method string, authTime time.Time) (*Session, error) {
	sess, err := g.issuer.Issue(user, method, authTime)
	if err != nil {
		return nil, err
	}
	g.log.Info("%s logged in via %s", user.DisplayName(), method)
	return sess, nil
}

// Verify checks a session token: signature, 24 hour age and revocation.
func (g *Gate) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := g.issuer.Parse(token)
	if err != nil {
		return nil, err
	}
	if g.users != nil {
		revoked, err := g.users.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check session: %w", err)
		}
		if revoked {
			return nil, ErrSessionRevoked
		}
	}
	return claims, nil
}

// Logout revokes the session behind token.
func (g *Gate) Logout(ctx context.Context, token string) error {
	claims, err := g.issuer.Parse(token)
	if err != nil {
		// Expired or invalid sessions are already logged out.
		return nil
	}
	if g.users == nil {
		return nil
	}
	if err := g.users.RevokeSession(ctx, claims.ID, claims.Expiry()); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	g.log.Info("%s logged out", claims.User.DisplayName())
	return nil
}
