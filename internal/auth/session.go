// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long issued tokens stay valid; zero means no
	// expiration claim.
	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair at startup and reads the token
// lifetime from TOKEN_EXPIRE_TIME (a Go duration, or "never"/"0"/empty for
// non-expiring tokens).
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return parseTokenTTL()
}

// InitFromPath loads an ed25519 key pair from files instead of generating
// one, so sessions survive restarts.
func InitFromPath(privatePath, publicPath string) error {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	privateKey = ed25519.PrivateKey(priv)
	publicKey = ed25519.PublicKey(pub)
	return parseTokenTTL()
}

func parseTokenTTL() error {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "never" || raw == "0" {
		tokenTTL = 0
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse TOKEN_EXPIRE_TIME: %w", err)
	}
	tokenTTL = d
	return nil
}

// CreateJWT signs a token whose "sub" claim is the user id.
func CreateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{"sub": userID}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token and returns its "sub" claim.
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return userID, nil
}
