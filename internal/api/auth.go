package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"qrguard/internal/gateway"
	"qrguard/internal/models"
	"qrguard/internal/validation"
)

// OAuth providers the backend supports.
var Providers = []string{"google", "github"}

// Login exchanges credentials for a token and starts the session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, invalid("email and password are required")
	}
	var out models.AuthResponse
	if err := c.gw.Post(ctx, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := c.start(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup validates the form, registers the account and starts the session.
func (c *Client) Signup(ctx context.Context, email, username, password string) (*models.AuthResponse, error) {
	email, username = strings.TrimSpace(email), strings.TrimSpace(username)
	if err := validation.ValidateSignup(email, username, password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	var out models.AuthResponse
	req := models.SignupRequest{Email: email, Username: username, Password: password}
	if err := c.gw.Post(ctx, "/api/auth/signup", req, &out); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	if err := c.start(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) start(ctx context.Context, resp *models.AuthResponse) error {
	if resp.Token == "" {
		return fmt.Errorf("backend returned no token")
	}
	return c.session.Login(ctx, resp.Token, userIdentity(resp.User.ID, resp.User.Username))
}

// OAuthURL returns the address that starts the provider flow. The provider
// redirects back to redirect with ?token=.
func (c *Client) OAuthURL(provider, redirect string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	known := false
	for _, p := range Providers {
		known = known || p == provider
	}
	if !known {
		return "", invalid("unknown oauth provider %q", provider)
	}
	if u, err := url.Parse(redirect); err != nil || u.Scheme == "" || u.Host == "" {
		return "", invalid("redirect must be an absolute url")
	}
	return c.gw.URL("/api/auth/oauth/"+provider, url.Values{"redirect_uri": {redirect}}), nil
}

// CompleteOAuth starts the session from a token delivered to the OAuth
// callback, then refreshes the identity from the profile endpoint. A 401 from
// the refresh means the token was rejected and fails the sign in; any other
// refresh failure keeps the identity decoded from the token.
func (c *Client) CompleteOAuth(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return invalid("oauth callback carried no token")
	}
	if err := c.session.Login(ctx, token, nil); err != nil {
		return err
	}
	if _, err := c.Me(ctx); err != nil {
		if gateway.IsUnauthorized(err) {
			return fmt.Errorf("complete oauth: %w", err)
		}
		c.log.WarnContext(ctx, "refresh identity after oauth", "error", err)
	}
	return nil
}

// Me fetches the current profile and refreshes the session identity from it.
func (c *Client) Me(ctx context.Context) (*models.Profile, error) {
	var out models.Profile
	if err := c.gw.Get(ctx, "/api/users/me", nil, &out); err != nil {
		return nil, c.identityBound(ctx, "fetch profile", err)
	}
	if id := userIdentity(out.ID, out.Username); id != nil {
		c.session.UpdateIdentity(*id)
	}
	return &out, nil
}

// UpdateProfile renames the current user.
func (c *Client) UpdateProfile(ctx context.Context, username string) (*models.Profile, error) {
	username = strings.TrimSpace(username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	var out models.Profile
	if err := c.gw.Put(ctx, "/api/users/me", models.ProfileUpdate{Username: username}, &out); err != nil {
		return nil, c.identityBound(ctx, "update profile", err)
	}
	if id := userIdentity(out.ID, out.Username); id != nil {
		c.session.UpdateIdentity(*id)
	}
	return &out, nil
}

// ChangePassword replaces the account password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" {
		return invalid("current password is required")
	}
	if err := validation.ValidatePassword(next); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	err := c.gw.Put(ctx, "/api/users/me/password", models.PasswordChange{Current: current, New: next}, nil)
	return c.identityBound(ctx, "change password", err)
}

// DeleteAccount removes the account and, on success, logs out.
func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.gw.Delete(ctx, "/api/users/me", nil); err != nil {
		return c.identityBound(ctx, "delete account", err)
	}
	c.session.Logout(ctx)
	return nil
}

// Logout ends the local session. The backend keeps no session state.
func (c *Client) Logout(ctx context.Context) {
	c.session.Logout(ctx)
}
