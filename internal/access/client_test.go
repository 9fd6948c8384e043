package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"receiptgen/internal/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	configured  bool
	configCalls atomic.Int32
	logouts     atomic.Int32
	authDate    time.Time
	meStatus    atomic.Int32
}

func (f *fakeServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/telegram/config", func(w http.ResponseWriter, r *http.Request) {
		f.configCalls.Add(1)
		writeJSON(w, http.StatusOK, TelegramConfig{Configured: f.configured, BotUsername: "receipts_bot"})
	})
	mux.HandleFunc("/api/auth/username", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["username"] != "owner" {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "error": ErrNotMember.Error()})
			return
		}
		writeJSON(w, http.StatusOK, LoginResponse{
			Token:     "tok-owner",
			User:      telegram.User{ID: 1, FirstName: "Owner", Username: "owner"},
			Method:    MethodUsername,
			AuthDate:  f.authDate.Unix(),
			ExpiresAt: f.authDate.Add(SessionLifetime),
		})
	})
	mux.HandleFunc("/api/auth/emergency", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, LoginResponse{
			Token: "tok-ops", User: telegram.User{FirstName: "ops"}, Method: MethodEmergency,
			AuthDate: f.authDate.Unix(), ExpiresAt: f.authDate.Add(SessionLifetime),
		})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if status := int(f.meStatus.Load()); status != 0 {
			writeJSON(w, status, map[string]any{"success": false, "error": "session revoked"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": telegram.User{ID: 1, Username: "owner"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, f *fakeServer, tokenFile string) *Client {
	t.Helper()
	srv := f.start(t)
	return NewClient(NewRemoteMembership(srv.URL, time.Second), tokenFile)
}

func TestClient_LoginAndPersist(t *testing.T) {
	auth := time.Now().Truncate(time.Second)
	f := &fakeServer{configured: true, authDate: auth}
	file := filepath.Join(t.TempDir(), "session.json")
	c := newTestClient(t, f, file)
	ctx := context.Background()

	assert.Equal(t, Unauthenticated, c.State())
	resp, err := c.LoginUsername(ctx, "@owner")
	require.NoError(t, err)
	assert.Equal(t, "tok-owner", resp.Token)
	assert.Equal(t, Authenticated, c.State())

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again := NewClient(c.remote, file)
	assert.Equal(t, Authenticated, again.State())
	assert.Equal(t, "tok-owner", again.Token())

	require.NoError(t, again.Logout(ctx))
	assert.Equal(t, Unauthenticated, again.State())
	assert.EqualValues(t, 1, f.logouts.Load())
	_, err = os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestClient_FailedLoginReturnsToUnauthenticated(t *testing.T) {
	f := &fakeServer{configured: true, authDate: time.Now()}
	c := newTestClient(t, f, "")

	_, err := c.LoginUsername(context.Background(), "stranger")
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)
	assert.Equal(t, ErrNotMember.Error(), re.Message)
	assert.Equal(t, Unauthenticated, c.State())
}

func TestClient_SessionExpiresAfterADay(t *testing.T) {
	auth := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	f := &fakeServer{configured: true, authDate: auth}
	c := newTestClient(t, f, "")
	c.now = fixedClock(auth.Add(time.Minute))

	_, err := c.LoginUsername(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, c.State())

	c.now = fixedClock(auth.Add(24*time.Hour - time.Second))
	assert.Equal(t, Authenticated, c.State())

	c.now = fixedClock(auth.Add(24 * time.Hour))
	assert.Equal(t, Unauthenticated, c.State())
	assert.Empty(t, c.Token())
}

func TestClient_EmergencyModeWhenUnconfigured(t *testing.T) {
	f := &fakeServer{configured: false, authDate: time.Now()}
	c := newTestClient(t, f, "")
	ctx := context.Background()

	mode, cfg := c.Mode(ctx)
	assert.Equal(t, ModeEmergency, mode)
	assert.False(t, cfg.Configured)

	_, err := c.LoginUsername(ctx, "owner")
	assert.ErrorIs(t, err, ErrUnavailable)

	resp, err := c.LoginEmergency(ctx, "ops", "pw")
	require.NoError(t, err)
	assert.Equal(t, MethodEmergency, resp.Method)
}

func TestClient_EmergencyModeWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(NewRemoteMembership(srv.URL, time.Second), "")

	mode, _ := c.Mode(context.Background())
	assert.Equal(t, ModeEmergency, mode)
}

func TestClient_ConfigFetchedOnce(t *testing.T) {
	f := &fakeServer{configured: true, authDate: time.Now()}
	c := newTestClient(t, f, "")

	for i := 0; i < 5; i++ {
		mode, cfg := c.Mode(context.Background())
		assert.Equal(t, ModeTelegram, mode)
		assert.Equal(t, "receipts_bot", cfg.BotUsername)
	}
	assert.EqualValues(t, 1, f.configCalls.Load())
}

func TestClient_MeClearsRejectedSession(t *testing.T) {
	f := &fakeServer{configured: true, authDate: time.Now()}
	c := newTestClient(t, f, "")
	ctx := context.Background()

	_, err := c.LoginUsername(ctx, "owner")
	require.NoError(t, err)
	u, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "owner", u.Username)

	f.meStatus.Store(http.StatusUnauthorized)
	_, err = c.Me(ctx)
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, c.State())
}

func TestClient_CorruptSessionFileIgnored(t *testing.T) {
	file := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0o600))
	c := NewClient(NewRemoteMembership("http://127.0.0.1:0", time.Second), file)
	assert.Equal(t, Unauthenticated, c.State())
}
