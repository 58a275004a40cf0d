package api

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrguard/internal/events"
	"qrguard/internal/featureflags"
	"qrguard/internal/gateway"
	"qrguard/internal/models"
	"qrguard/internal/prompt"
	"qrguard/internal/scrolllock"
	"qrguard/internal/session"
	"qrguard/internal/storage"
	"qrguard/internal/testutil"
	"qrguard/internal/tokenstore"
)

type fixture struct {
	backend *testutil.Backend
	tokens  *tokenstore.TokenStore
	bus     *events.Bus
	session *session.Store
	prompts *prompt.Manager
	client  *Client
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	backend := testutil.NewBackend(t)
	tokens := tokenstore.New(storage.NewMemoryStore(), "")
	bus := events.NewBus(nil)
	prompts := prompt.NewManager(scrolllock.New(scrolllock.NewViewport(scrolllock.Style{}, 0)), bus)
	sess := session.NewStore(tokens, bus, prompts, nil)
	t.Cleanup(sess.Close)
	sess.Initialize(context.Background())

	gw, err := gateway.New(backend.URL, &http.Client{Timeout: 5 * time.Second}, tokens, nil)
	require.NoError(t, err)

	return &fixture{
		backend: backend,
		tokens:  tokens,
		bus:     bus,
		session: sess,
		prompts: prompts,
		client:  New(gw, sess, bus, opts),
	}
}

// loginAs creates a backend user and logs the session in as them.
func (f *fixture) loginAs(t *testing.T) *models.User {
	t.Helper()
	user, _ := f.backend.CreateUser(t)
	_, err := f.client.Login(context.Background(), user.Email, testutil.DefaultPassword)
	require.NoError(t, err)
	return user
}

func (f *fixture) expiredSignals() *int {
	n := 0
	f.bus.Subscribe(events.TokenExpired, func(context.Context, any) { n++ })
	return &n
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLogin(t *testing.T) {
	f := newFixture(t, Options{})
	user, _ := f.backend.CreateUser(t)

	resp, err := f.client.Login(context.Background(), user.Email, testutil.DefaultPassword)
	require.NoError(t, err)

	st := f.session.State()
	assert.True(t, st.IsLoggedIn)
	assert.Equal(t, strconv.FormatUint(uint64(user.ID), 10), st.User.ID)
	assert.Equal(t, user.Username, st.User.Username)
	assert.Equal(t, resp.Token, f.tokens.Token(context.Background()))
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t, Options{})
	expired := f.expiredSignals()
	user, _ := f.backend.CreateUser(t)

	_, err := f.client.Login(context.Background(), user.Email, "wrong")
	assert.True(t, gateway.IsUnauthorized(err))
	assert.False(t, f.session.State().IsLoggedIn)
	assert.Equal(t, 0, *expired, "a failed login is not an expired session")

	_, err = f.client.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSignup(t *testing.T) {
	f := newFixture(t, Options{})

	resp, err := f.client.Signup(context.Background(), "new@example.com", "qr_scout", "SecurePass12!")
	require.NoError(t, err)
	assert.Equal(t, "qr_scout", resp.User.Username)
	assert.Equal(t, "qr_scout", f.session.State().User.Username)

	_, err = f.client.Signup(context.Background(), "new@example.com", "qr_scout", "SecurePass12!")
	assert.Equal(t, http.StatusConflict, gateway.StatusOf(err))
}

func TestSignup_ValidatesBeforeSending(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.client.Signup(context.Background(), "bad", "x", "weak")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, sent := f.backend.LastRequest(http.MethodPost, "/api/auth/signup")
	assert.False(t, sent)
}

func TestOAuthURL(t *testing.T) {
	f := newFixture(t, Options{})

	raw, err := f.client.OAuthURL("GitHub", "http://127.0.0.1:9000/oauth/callback")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/api/auth/oauth/github", u.Path)
	assert.Equal(t, "http://127.0.0.1:9000/oauth/callback", u.Query().Get("redirect_uri"))

	_, err = f.client.OAuthURL("myspace", "http://127.0.0.1:9000/cb")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.client.OAuthURL("google", "/relative")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMe_AuthHeaderAndIdentityRefresh(t *testing.T) {
	f := newFixture(t, Options{})
	user := f.loginAs(t)

	require.NoError(t, f.backend.DB.Model(user).Update("username", "renamed_elsewhere").Error)
	profile, err := f.client.Me(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "renamed_elsewhere", profile.Username)
	assert.Equal(t, "renamed_elsewhere", f.session.State().User.Username)

	req, ok := f.backend.LastRequest(http.MethodGet, "/api/users/me")
	require.True(t, ok)
	assert.Equal(t, "Bearer "+f.tokens.Token(context.Background()), req.Authorization)
	assert.NotEmpty(t, req.RequestID)
}

func TestMe_401RaisesTokenExpired(t *testing.T) {
	f := newFixture(t, Options{})
	f.loginAs(t)
	chatClosed := false
	f.bus.Subscribe(events.ChatClose, func(context.Context, any) { chatClosed = true })

	f.backend.RevokeTokens(true)
	_, err := f.client.Me(context.Background())

	assert.True(t, gateway.IsUnauthorized(err))
	st := f.session.State()
	assert.False(t, st.IsLoggedIn)
	assert.True(t, st.User.IsAnonymous())
	assert.True(t, f.prompts.AuthVisible())
	assert.True(t, f.prompts.AuthMandatory())
	assert.True(t, chatClosed)
	assert.Equal(t, "", f.tokens.Token(context.Background()))
}

func TestAnonymousRequestsCarryNoToken(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.client.ListPosts(context.Background(), 1, 10, "")
	require.NoError(t, err)

	req, ok := f.backend.LastRequest(http.MethodGet, "/api/posts")
	require.True(t, ok)
	assert.Empty(t, req.Authorization)
}

func TestProfileOperations(t *testing.T) {
	f := newFixture(t, Options{})
	f.loginAs(t)
	ctx := context.Background()

	profile, err := f.client.UpdateProfile(ctx, "fresh_name")
	require.NoError(t, err)
	assert.Equal(t, "fresh_name", profile.Username)
	assert.Equal(t, "fresh_name", f.session.State().User.Username)

	_, err = f.client.UpdateProfile(ctx, "-bad")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.client.ChangePassword(ctx, "not-current", "AnotherPass12!")
	assert.Equal(t, http.StatusBadRequest, gateway.StatusOf(err))
	require.NoError(t, f.client.ChangePassword(ctx, testutil.DefaultPassword, "AnotherPass12!"))
	assert.ErrorIs(t, f.client.ChangePassword(ctx, "x", "short"), ErrInvalidInput)
}

func TestDeleteAccount_LogsOut(t *testing.T) {
	f := newFixture(t, Options{})
	f.loginAs(t)
	reset := 0
	f.bus.Subscribe(events.SessionReset, func(context.Context, any) { reset++ })

	require.NoError(t, f.client.DeleteAccount(context.Background()))

	assert.False(t, f.session.State().IsLoggedIn)
	assert.Equal(t, "", f.tokens.Token(context.Background()))
	assert.Equal(t, 1, reset)
}

func TestAnalysis(t *testing.T) {
	f := newFixture(t, Options{})
	f.loginAs(t)
	ctx := context.Background()

	rec, err := f.client.AnalyzeURL(ctx, "http://192.168.4.20/secure-login/verify")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictPhishing, rec.Verdict)
	assert.NotEmpty(t, rec.Reasons)

	safe, err := f.client.AnalyzeURL(ctx, "https://example.com/menu")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSafe, safe.Verdict)

	img, err := f.client.AnalyzeImage(ctx, "parking-meter.jpg", bytes.NewReader(pngBytes(t, 32, 32)))
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, img.Kind)
	assert.Equal(t, "parking-meter.png", img.Target)

	hist, err := f.client.History(ctx, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, hist.Total)
	assert.Equal(t, 1, hist.Page)
	assert.Equal(t, DefaultPageSize, hist.Size)
	require.Len(t, hist.Items, 3)
	assert.Equal(t, img.ID, hist.Items[0].ID)

	got, err := f.client.GetAnalysis(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Target, got.Target)

	require.NoError(t, f.client.DeleteAnalysis(ctx, rec.ID))
	_, err = f.client.GetAnalysis(ctx, rec.ID)
	assert.True(t, gateway.IsNotFound(err))

	_, err = f.client.AnalyzeURL(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.client.AnalyzeImage(ctx, "notes.txt", bytes.NewReader([]byte("hello")))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHistory_AnonymousRaisesTokenExpired(t *testing.T) {
	f := newFixture(t, Options{})
	expired := f.expiredSignals()

	_, err := f.client.History(context.Background(), 1, 10)

	assert.True(t, gateway.IsUnauthorized(err))
	assert.Equal(t, 1, *expired)
	assert.True(t, f.prompts.AuthMandatory())
}

func TestAnalyzeImage_FeatureFlag(t *testing.T) {
	f := newFixture(t, Options{Flags: featureflags.Parse("image_analysis=off")})

	_, err := f.client.AnalyzeImage(context.Background(), "qr.png", bytes.NewReader(pngBytes(t, 8, 8)))
	assert.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestCommunity(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	other, _ := f.backend.CreateUser(t)
	f.backend.CreatePost(t, other, func(p *models.Post) {
		p.Title = "Parking meter scam"
		p.Content = `<p>Sticker over the real code</p><script>alert(1)</script>`
	})
	f.backend.CreatePost(t, other)
	me := f.loginAs(t)

	page, err := f.client.ListPosts(ctx, 1, 10, "parking")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, "<p>Sticker over the real code</p>", page.Items[0].Content)
	assert.Equal(t, other.Username, page.Items[0].User.Username)

	created, err := f.client.CreatePost(ctx, NewPost{
		Title:     "Fake QR at station",
		Content:   "Leads to a cloned payment page",
		ImageName: "station.jpg",
		Image:     bytes.NewReader(pngBytes(t, 40, 20)),
	})
	require.NoError(t, err)
	assert.Equal(t, me.ID, created.UserID)
	assert.NotEmpty(t, created.ImageURL)

	updated, err := f.client.UpdatePost(ctx, created.ID, "Fake QR at central station", "")
	require.NoError(t, err)
	assert.Equal(t, "Fake QR at central station", updated.Title)
	assert.Equal(t, "Leads to a cloned payment page", updated.Content)

	comment, err := f.client.CreateComment(ctx, created.ID, "Saw it too")
	require.NoError(t, err)
	comments, err := f.client.ListComments(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, comment.ID, comments[0].ID)

	got, err := f.client.GetPost(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentsCount)

	require.NoError(t, f.client.DeleteComment(ctx, created.ID, comment.ID))
	require.NoError(t, f.client.DeletePost(ctx, created.ID))
	_, err = f.client.GetPost(ctx, created.ID)
	assert.True(t, gateway.IsNotFound(err))

	_, err = f.client.CreatePost(ctx, NewPost{Title: "only title"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReportAndDelete_AlreadyModerated(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	other, _ := f.backend.CreateUser(t)
	post := f.backend.CreatePost(t, other)
	comment := f.backend.CreateComment(t, post, other)
	f.loginAs(t)
	expired := f.expiredSignals()

	require.NoError(t, f.client.ReportComment(ctx, post.ID, comment.ID, "spam"))
	err := f.client.ReportComment(ctx, post.ID, comment.ID, "spam")
	assert.ErrorIs(t, err, ErrAlreadyModerated, "comment is gone after the first report")

	require.NoError(t, f.client.ReportPost(ctx, post.ID, "phishing link"))
	err = f.client.ReportPost(ctx, post.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyModerated)
	assert.True(t, gateway.IsNotFound(err), "the backend status stays in the chain")

	err = f.client.DeletePost(ctx, post.ID)
	assert.ErrorIs(t, err, ErrAlreadyModerated)

	mine, err := f.client.CreatePost(ctx, NewPost{Title: "t", Content: "c"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.client.ReportPost(ctx, mine.ID, "self"), ErrAlreadyModerated, "403 is coalesced too")

	f.backend.RevokeTokens(true)
	assert.ErrorIs(t, f.client.DeletePost(ctx, mine.ID), ErrAlreadyModerated, "401 is coalesced too")
	assert.Equal(t, 0, *expired, "report and delete never raise token expiry")
	assert.True(t, f.session.State().IsLoggedIn)
}

func TestBackendFailureIsWrapped(t *testing.T) {
	f := newFixture(t, Options{})
	gw, err := gateway.New("http://127.0.0.1:1", &http.Client{Timeout: time.Second}, f.tokens, nil)
	require.NoError(t, err)
	offline := New(gw, f.session, f.bus, Options{})

	_, err = offline.ListPosts(context.Background(), 1, 10, "")
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))
	assert.False(t, errors.Is(err, ErrAlreadyModerated))
	assert.ErrorContains(t, err, "list posts")
}

func TestSendChat(t *testing.T) {
	f := newFixture(t, Options{})
	f.loginAs(t)
	var gotHistory []models.ChatTurn
	f.backend.ChatReply = func(message string, history []models.ChatTurn) string {
		gotHistory = history
		return "Is the URL on a sticker? " + message
	}

	reply, err := f.client.SendChat(context.Background(), "is this safe?", []models.ChatTurn{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Is the URL on a sticker? is this safe?", reply)
	assert.Equal(t, []models.ChatTurn{{Role: "user", Content: "hi"}}, gotHistory)

	_, err = f.client.SendChat(context.Background(), " ", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompleteOAuth(t *testing.T) {
	f := newFixture(t, Options{})
	user, _ := f.backend.CreateUser(t)

	require.NoError(t, f.client.CompleteOAuth(context.Background(), f.backend.Token(user, time.Hour)))

	state := f.session.State()
	assert.True(t, state.IsLoggedIn)
	assert.Equal(t, user.Username, state.User.Username)
	assert.Equal(t, strconv.FormatUint(uint64(user.ID), 10), state.User.ID)

	assert.ErrorIs(t, f.client.CompleteOAuth(context.Background(), " "), ErrInvalidInput)
}

func TestCompleteOAuth_RejectedTokenFails(t *testing.T) {
	f := newFixture(t, Options{})
	expired := f.expiredSignals()
	user, _ := f.backend.CreateUser(t)
	f.backend.RevokeTokens(true)

	err := f.client.CompleteOAuth(context.Background(), f.backend.Token(user, time.Hour))

	require.Error(t, err)
	assert.True(t, gateway.IsUnauthorized(err))
	assert.Equal(t, 1, *expired)
	assert.False(t, f.session.State().IsLoggedIn)
	assert.True(t, f.prompts.AuthMandatory())
	assert.Empty(t, f.tokens.Token(context.Background()), "the rejected token is not kept")
}
