package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrguard/internal/api"
	"qrguard/internal/chat"
	"qrguard/internal/config"
	"qrguard/internal/models"
	"qrguard/internal/notice"
	"qrguard/internal/storage"
	"qrguard/internal/testutil"
)

func testConfig(backend *testutil.Backend) *config.Config {
	cfg := config.Defaults()
	cfg.APIBaseURL = backend.URL
	cfg.RequestTimeout = 5 * time.Second
	cfg.OAuthCallback = "127.0.0.1:0"
	cfg.OAuthTimeout = 5 * time.Second
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.APIBaseURL = "ftp://example.com"

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestApplication_SessionSurvivesRestart(t *testing.T) {
	backend := testutil.NewBackend(t)
	user, _ := backend.CreateUser(t)
	cfg := testConfig(backend)
	cfg.StorageDriver = config.StorageSQLite
	cfg.StoragePath = filepath.Join(t.TempDir(), "local.db")

	first, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	_, err = first.API.Login(context.Background(), user.Email, testutil.DefaultPassword)
	require.NoError(t, err)
	require.NoError(t, first.Close())
	require.NoError(t, first.Close(), "close is idempotent")

	second := newApp(t, cfg)
	state := second.Session.State()
	assert.True(t, state.IsChecked)
	assert.True(t, state.IsLoggedIn)
	assert.Equal(t, user.Username, state.User.Username)
}

func TestApplication_TokenExpiryResetsEverything(t *testing.T) {
	backend := testutil.NewBackend(t)
	user, _ := backend.CreateUser(t)
	a := newApp(t, testConfig(backend))
	ctx := context.Background()

	_, err := a.API.Login(ctx, user.Email, testutil.DefaultPassword)
	require.NoError(t, err)
	_, err = a.SendChat(ctx, "hello")
	require.NoError(t, err)
	require.True(t, a.Chat.IsOpen())
	a.Prompts.Open("drawer")

	backend.RevokeTokens(true)
	_, err = a.API.Me(ctx)
	require.Error(t, err)

	assert.False(t, a.Session.State().IsLoggedIn)
	assert.True(t, a.Prompts.AuthVisible())
	assert.True(t, a.Prompts.AuthMandatory())
	assert.False(t, a.Chat.IsOpen())
	_, err = a.Store.Get(ctx, a.Config.TokenKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	n, err := a.Store.DeletePrefix(ctx, a.Config.ChatPrefix)
	require.NoError(t, err)
	assert.Zero(t, n, "transcripts are purged on reset")
	assert.Equal(t, 2, a.ScrollLock.Depth(), "drawer plus the mandatory auth prompt")
}

func TestApplication_SendChatHonoursFlag(t *testing.T) {
	backend := testutil.NewBackend(t)
	cfg := testConfig(backend)
	cfg.FeatureFlags = "chat_widget=off"
	a := newApp(t, cfg)

	_, err := a.SendChat(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrChatDisabled)
	assert.False(t, a.Chat.IsOpen())
}

func TestApplication_ChatTransportSelection(t *testing.T) {
	backend := testutil.NewBackend(t)

	cfg := testConfig(backend)
	a := newApp(t, cfg)
	assert.IsType(t, &chat.HTTPTransport{}, a.transport)

	cfg = testConfig(backend)
	cfg.ChatTransport = config.ChatWebSocket
	b := newApp(t, cfg)
	assert.IsType(t, &chat.WSTransport{}, b.transport)

	cfg = testConfig(backend)
	cfg.FeatureFlags = "chat_websocket=on"
	c := newApp(t, cfg)
	assert.IsType(t, &chat.WSTransport{}, c.transport)
}

func TestApplication_ChatOverWebSocket(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.ChatReply = func(message string, history []models.ChatTurn) string {
		return fmt.Sprintf("%s (%d)", message, len(history))
	}
	user, _ := backend.CreateUser(t)
	cfg := testConfig(backend)
	cfg.ChatTransport = config.ChatWebSocket
	a := newApp(t, cfg)
	_, err := a.API.Login(context.Background(), user.Email, testutil.DefaultPassword)
	require.NoError(t, err)

	_, err = a.SendChat(context.Background(), "one")
	require.NoError(t, err)
	reply, err := a.SendChat(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, "two (2)", reply.Content)
}

func TestApplication_OAuthLogin(t *testing.T) {
	backend := testutil.NewBackend(t)
	a := newApp(t, testConfig(backend))

	err := a.OAuthLogin(context.Background(), "google", func(target string) error {
		resp, err := http.Get(target)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
	require.NoError(t, err)

	state := a.Session.State()
	assert.True(t, state.IsLoggedIn)
	assert.Equal(t, "google_user", state.User.Username)
}

func TestApplication_OAuthLoginOpenFailure(t *testing.T) {
	backend := testutil.NewBackend(t)
	a := newApp(t, testConfig(backend))
	boom := errors.New("no browser")

	err := a.OAuthLogin(context.Background(), "github", func(string) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = a.OAuthLogin(context.Background(), "myspace", func(string) error { return nil })
	assert.ErrorIs(t, err, api.ErrInvalidInput)
}

func TestApplication_Notify(t *testing.T) {
	backend := testutil.NewBackend(t)
	a := newApp(t, testConfig(backend))

	tests := []struct {
		name  string
		err   error
		level notice.Level
	}{
		{"moderated", fmt.Errorf("report post: %w", api.ErrAlreadyModerated), notice.LevelInfo},
		{"feature", api.ErrFeatureDisabled, notice.LevelInfo},
		{"chat", ErrChatDisabled, notice.LevelInfo},
		{"failure", errors.New("connection refused"), notice.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := a.Notify(tt.err)
			require.NotNil(t, n)
			assert.Equal(t, tt.level, n.Level)
		})
	}
	assert.Nil(t, a.Notify(nil))
	assert.Len(t, a.Notices.Active(), len(tests))
}

func TestApplication_MetricsEndpoint(t *testing.T) {
	backend := testutil.NewBackend(t)
	cfg := testConfig(backend)
	cfg.MetricsAddr = "127.0.0.1:0"
	a := newApp(t, cfg)
	require.NotEmpty(t, a.MetricsAddr())

	_, _ = a.API.Me(context.Background())

	resp, err := http.Get("http://" + a.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "qrguard_gateway_requests_total")
}
