// Package testutil runs an in-process fake of the qrguard backend for
// client tests. It stores users, posts, comments and analyses in sqlite,
// issues HS256 tokens and serves the chat websocket.
package testutil

import (
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"qrguard/internal/models"
	"qrguard/internal/storage"
)

const (
	issuer   = "qrguard-api"
	audience = "qrguard-client"
)

// Recorded is one request the backend received.
type Recorded struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

// Backend is a running fake backend.
type Backend struct {
	URL    string
	DB     *gorm.DB
	App    *fiber.App
	Secret []byte

	// ChatReply computes the assistant reply. Defaults to an echo.
	ChatReply func(message string, history []models.ChatTurn) string
	// ReportThreshold is how many reports remove content. Defaults to 1.
	ReportThreshold int

	revoked  atomic.Bool
	mu       sync.Mutex
	requests []Recorded
}

// NewBackend starts a fake backend on a loopback port and stops it when t ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	db, err := storage.OpenSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Report{},
		&models.AnalysisRecord{},
	))

	b := &Backend{
		DB:              db,
		Secret:          []byte("fake-backend-secret"),
		ReportThreshold: 1,
		ChatReply: func(message string, history []models.ChatTurn) string {
			return "echo: " + message
		},
	}
	b.App = fiber.New(fiber.Config{DisableStartupMessage: true, BodyLimit: 16 << 20})
	b.routes()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	b.URL = "http://" + ln.Addr().String()
	go func() { _ = b.App.Listener(ln) }()

	t.Cleanup(func() {
		_ = b.App.ShutdownWithTimeout(2 * time.Second)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return b
}

func (b *Backend) routes() {
	b.App.Use(b.record)

	api := b.App.Group("/api")
	api.Post("/auth/login", b.login)
	api.Post("/auth/signup", b.signup)
	api.Get("/auth/oauth/:provider", b.oauth)

	api.Get("/users/me", b.auth, b.me)
	api.Put("/users/me", b.auth, b.updateMe)
	api.Put("/users/me/password", b.auth, b.changePassword)
	api.Delete("/users/me", b.auth, b.deleteMe)

	api.Post("/analysis/url", b.optionalAuth, b.analyzeURL)
	api.Post("/analysis/image", b.optionalAuth, b.analyzeImage)
	api.Get("/analysis/history", b.auth, b.history)
	api.Get("/analysis/:id", b.auth, b.getAnalysis)
	api.Delete("/analysis/:id", b.auth, b.deleteAnalysis)

	api.Get("/posts", b.listPosts)
	api.Post("/posts", b.auth, b.createPost)
	api.Get("/posts/:id", b.getPost)
	api.Put("/posts/:id", b.auth, b.updatePost)
	api.Delete("/posts/:id", b.auth, b.deletePost)
	api.Post("/posts/:id/report", b.auth, b.reportPost)
	api.Get("/posts/:id/comments", b.listComments)
	api.Post("/posts/:id/comments", b.auth, b.createComment)
	api.Delete("/posts/:id/comments/:commentId", b.auth, b.deleteComment)
	api.Post("/posts/:id/comments/:commentId/report", b.auth, b.reportComment)

	api.Post("/chat", b.auth, b.chat)

	b.App.Use("/ws", b.wsUpgrade)
	b.App.Get("/ws/chat", websocket.New(b.chatSocket))
}

func (b *Backend) record(c *fiber.Ctx) error {
	b.mu.Lock()
	b.requests = append(b.requests, Recorded{
		Method:        c.Method(),
		Path:          c.Path(),
		Authorization: c.Get(fiber.HeaderAuthorization),
		RequestID:     c.Get("X-Request-ID"),
	})
	b.mu.Unlock()
	return c.Next()
}

// Requests returns every request received so far.
func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Recorded(nil), b.requests...)
}

// LastRequest returns the most recent request to path.
func (b *Backend) LastRequest(method, path string) (Recorded, bool) {
	reqs := b.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method && reqs[i].Path == path {
			return reqs[i], true
		}
	}
	return Recorded{}, false
}

// RevokeTokens makes every authenticated route answer 401, as if the
// server had expired all sessions.
func (b *Backend) RevokeTokens(revoked bool) {
	b.revoked.Store(revoked)
}

// Token signs a token for user valid for ttl. A negative ttl gives an expired token.
func (b *Backend) Token(user *models.User, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userSubject(user.ID),
		"username": user.Username,
		"iss":      issuer,
		"aud":      audience,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.Secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (b *Backend) parseToken(raw string) (uint, bool) {
	if raw == "" || b.revoked.Load() {
		return 0, false
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return b.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithAudience(audience))
	if err != nil || !tok.Valid {
		return 0, false
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return 0, false
	}
	id, ok := parseSubject(sub)
	if !ok {
		return 0, false
	}
	var count int64
	b.DB.Model(&models.User{}).Where("id = ?", id).Count(&count)
	return id, count == 1
}

func bearer(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return tok
	}
	return ""
}

func (b *Backend) auth(c *fiber.Ctx) error {
	id, ok := b.parseToken(bearer(c))
	if !ok {
		return respond(c, fiber.StatusUnauthorized, models.CodeUnauthorized, "Invalid or expired token")
	}
	c.Locals("userID", id)
	return c.Next()
}

func (b *Backend) optionalAuth(c *fiber.Ctx) error {
	if tok := bearer(c); tok != "" {
		if id, ok := b.parseToken(tok); ok {
			c.Locals("userID", id)
		}
	}
	return c.Next()
}

func (b *Backend) wsUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	id, ok := b.parseToken(c.Query("token"))
	if !ok {
		return respond(c, fiber.StatusUnauthorized, models.CodeUnauthorized, "Invalid or expired token")
	}
	c.Locals("userID", id)
	return c.Next()
}

func currentUser(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

func respond(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(models.ErrorResponse{Error: msg, Code: code})
}
