package testutil

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"qrguard/internal/models"
)

// TokenTTL is the lifetime of tokens issued by login, signup and OAuth.
const TokenTTL = 7 * 24 * time.Hour

func userSubject(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func parseSubject(sub string) (uint, bool) {
	n, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func (b *Backend) issue(c *fiber.Ctx, status int, user *models.User) error {
	return c.Status(status).JSON(models.AuthResponse{Token: b.Token(user, TokenTTL), User: *user})
}

func (b *Backend) login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "Invalid request body")
	}
	var user models.User
	if err := b.DB.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
		return respond(c, fiber.StatusUnauthorized, models.CodeUnauthorized, "Invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return respond(c, fiber.StatusUnauthorized, models.CodeUnauthorized, "Invalid credentials")
	}
	return b.issue(c, fiber.StatusOK, &user)
}

func (b *Backend) signup(c *fiber.Ctx) error {
	var req models.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "Invalid request body")
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "Username, email, and password are required")
	}
	var count int64
	b.DB.Model(&models.User{}).Where("email = ? OR username = ?", strings.ToLower(req.Email), req.Username).Count(&count)
	if count > 0 {
		return respond(c, fiber.StatusConflict, models.CodeConflict, "User already exists")
	}
	user, err := b.createUser(req.Email, req.Username, req.Password, "")
	if err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}
	return b.issue(c, fiber.StatusCreated, user)
}

func (b *Backend) createUser(email, username, password, provider string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:    strings.ToLower(email),
		Username: username,
		Password: string(hash),
		Provider: provider,
	}
	if err := b.DB.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// oauth skips the provider consent screen: it signs in a per-provider user and
// redirects straight back to redirect_uri with the token.
func (b *Backend) oauth(c *fiber.Ctx) error {
	provider := c.Params("provider")
	if provider != "google" && provider != "github" {
		return respond(c, fiber.StatusNotFound, models.CodeNotFound, "Unknown provider")
	}
	redirect, err := url.Parse(c.Query("redirect_uri"))
	if err != nil || redirect.Scheme == "" || redirect.Host == "" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "redirect_uri is required")
	}

	email := provider + "-user@example.com"
	var user models.User
	err = b.DB.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, cerr := b.createUser(email, provider+"_user", "oauth-"+provider, provider)
		if cerr != nil {
			return respond(c, fiber.StatusInternalServerError, models.CodeInternal, cerr.Error())
		}
		user = *created
	} else if err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}

	q := redirect.Query()
	q.Set("token", b.Token(&user, TokenTTL))
	redirect.RawQuery = q.Encode()
	return c.Redirect(redirect.String(), fiber.StatusFound)
}

func (b *Backend) me(c *fiber.Ctx) error {
	var user models.User
	if err := b.DB.First(&user, currentUser(c)).Error; err != nil {
		return respond(c, fiber.StatusNotFound, models.CodeNotFound, "User not found")
	}
	return c.JSON(user)
}

func (b *Backend) updateMe(c *fiber.Ctx) error {
	var req models.ProfileUpdate
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "Username is required")
	}
	var taken int64
	b.DB.Model(&models.User{}).Where("username = ? AND id <> ?", req.Username, currentUser(c)).Count(&taken)
	if taken > 0 {
		return respond(c, fiber.StatusConflict, models.CodeConflict, "Username already taken")
	}
	var user models.User
	if err := b.DB.First(&user, currentUser(c)).Error; err != nil {
		return respond(c, fiber.StatusNotFound, models.CodeNotFound, "User not found")
	}
	user.Username = req.Username
	if err := b.DB.Save(&user).Error; err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}
	return c.JSON(user)
}

func (b *Backend) changePassword(c *fiber.Ctx) error {
	var req models.PasswordChange
	if err := c.BodyParser(&req); err != nil || req.New == "" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "New password is required")
	}
	var user models.User
	if err := b.DB.First(&user, currentUser(c)).Error; err != nil {
		return respond(c, fiber.StatusNotFound, models.CodeNotFound, "User not found")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Current)) != nil {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "Current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.New), bcrypt.MinCost)
	if err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}
	b.DB.Model(&user).Update("password", string(hash))
	return c.SendStatus(fiber.StatusNoContent)
}

func (b *Backend) deleteMe(c *fiber.Ctx) error {
	if err := b.DB.Delete(&models.User{}, currentUser(c)).Error; err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}
