package paho

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestJWTSign(t *testing.T) {
	fixed := time.Now().Truncate(time.Second)
	cfg := &JWTConfig{
		Secret:   "s3cret",
		Issuer:   "sdvagent",
		Audience: "emqx",
		TTL:      10 * time.Minute,
		now:      func() time.Time { return fixed },
	}

	signed, err := cfg.Sign("client-1", "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	token, err := jwtlib.Parse(signed, func(tok *jwtlib.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer("sdvagent"),
		jwtlib.WithAudience("emqx"),
	)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	claims := token.Claims.(jwtlib.MapClaims)
	if sub, _ := claims.GetSubject(); sub != "client-1" {
		t.Errorf("sub = %q, want %q", sub, "client-1")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		t.Fatalf("exp: %v", err)
	}
	if want := fixed.Add(10 * time.Minute); !exp.Time.Equal(want) {
		t.Errorf("exp = %v, want %v", exp.Time, want)
	}
}

func TestJWTSignPrefersUsername(t *testing.T) {
	cfg := &JWTConfig{Secret: "k"}
	signed, err := cfg.Sign("client-1", "alice")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	token, err := jwtlib.Parse(signed, func(*jwtlib.Token) (interface{}, error) { return []byte("k"), nil })
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sub, _ := token.Claims.GetSubject(); sub != "alice" {
		t.Errorf("sub = %q, want %q", sub, "alice")
	}
}

func TestJWTSignRequiresSecret(t *testing.T) {
	cfg := &JWTConfig{}
	if _, err := cfg.Sign("c", ""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestJWTWrongSecretRejected(t *testing.T) {
	cfg := &JWTConfig{Secret: "right"}
	signed, err := cfg.Sign("c", "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	_, err = jwtlib.Parse(signed, func(*jwtlib.Token) (interface{}, error) { return []byte("wrong"), nil })
	if err == nil {
		t.Error("expected signature error with wrong secret")
	}
}
