// Package identity derives display identity from a bearer token payload.
//
// Decoding never verifies the signature. The result is fit for showing who
// is logged in and nothing else: authorization stays on the server.
package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned for tokens that are not three dot-separated
	// segments or whose payload is not base64url JSON.
	ErrMalformed = errors.New("identity: malformed token")
	// ErrExpired is returned when the payload exp claim lies in the past.
	ErrExpired = errors.New("identity: token expired")
)

// Identity is the decoded user. The zero value is the anonymous identity.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// IsAnonymous reports whether no user is attached.
func (i Identity) IsAnonymous() bool {
	return i.ID == "" && i.Username == ""
}

// MarshalJSON renders empty fields as null.
func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       *string `json:"id"`
		Username *string `json:"username"`
	}{nullable(i.ID), nullable(i.Username)})
}

// MarshalYAML mirrors MarshalJSON.
func (i Identity) MarshalYAML() (any, error) {
	return struct {
		ID       *string `yaml:"id"`
		Username *string `yaml:"username"`
	}{nullable(i.ID), nullable(i.Username)}, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Decode splits token, decodes its payload and extracts the identity.
// The header segment is not inspected. Decode never panics.
func Decode(token string) (Identity, jwt.MapClaims, error) {
	claims, err := Claims(token)
	if err != nil {
		return Identity{}, nil, err
	}
	return FromClaims(claims), claims, nil
}

// Claims returns the raw payload claims of token.
func Claims(token string) (jwt.MapClaims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 || parts[1] == "" {
		return nil, fmt.Errorf("%w: want 3 segments, got %d", ErrMalformed, len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64url: %v", ErrMalformed, err)
	}

	var claims jwt.MapClaims
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.UseNumber()
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object: %v", ErrMalformed, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrMalformed)
	}
	return claims, nil
}

// FromClaims picks the identity fields out of a claim set.
// The id comes from sub, then id, then user_id. The username comes from
// username, then name.
func FromClaims(claims jwt.MapClaims) Identity {
	return Identity{
		ID:       firstScalar(claims, "sub", "id", "user_id"),
		Username: firstScalar(claims, "username", "name"),
	}
}

// Expired reports whether the exp claim is before now. A missing exp never expires.
// An exp that is present but unreadable counts as expired.
func Expired(claims jwt.MapClaims, now time.Time) bool {
	if _, ok := claims["exp"]; !ok {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Before(now)
}

// Check decodes token and rejects it if expired at now.
func Check(token string, now time.Time) (Identity, error) {
	id, claims, err := Decode(token)
	if err != nil {
		return Identity{}, err
	}
	if Expired(claims, now) {
		return Identity{}, ErrExpired
	}
	return id, nil
}

func firstScalar(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
