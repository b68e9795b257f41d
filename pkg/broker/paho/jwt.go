package paho

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// JWTConfig mints short-lived HMAC tokens used as the MQTT password, for
// brokers (EMQX, HiveMQ) configured with JWT authentication.
type JWTConfig struct {
	// Secret is the shared HMAC key.
	Secret string

	// Issuer is written to the iss claim when set.
	Issuer string

	// Audience is written to the aud claim when set.
	Audience string

	// TTL is the token lifetime. Default: 1 hour.
	TTL time.Duration

	// now is overridable in tests.
	now func() time.Time
}

// Sign returns a token for the given client. The subject is the username
// when set, the client id otherwise.
func (c *JWTConfig) Sign(clientID, username string) (string, error) {
	if c.Secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	ttl := c.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	issued := now()

	subject := username
	if subject == "" {
		subject = clientID
	}

	claims := jwtlib.MapClaims{
		"sub":       subject,
		"client_id": clientID,
		"iat":       issued.Unix(),
		"exp":       issued.Add(ttl).Unix(),
	}
	if c.Issuer != "" {
		claims["iss"] = c.Issuer
	}
	if c.Audience != "" {
		claims["aud"] = c.Audience
	}

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(c.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return token, nil
}
