package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned when a token's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, malformed tokens, wrong token
	// kind and missing claims.
	ErrTokenInvalid = errors.New("invalid token")
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short-lived and travel in the Authorization header, the
// accessToken cookie or the WebSocket handshake.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is a long-lived signed token used to mint new access tokens.
// Only the SHA-256 of Raw is persisted.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// Claims is the identity decoded from a verified token.
type Claims struct {
	UserID string
	Role   string
}

// NewAccessToken builds and signs an HS256 JWT carrying sub (user id), role,
// exp and iat.
func NewAccessToken(secret, userID, role string, ttlMin int) (AccessToken, error) {
	exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
	signed, err := sign(secret, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"typ":  kindAccess,
		"exp":  exp.Unix(),
		"iat":  time.Now().UTC().Unix(),
	})
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken signs a refresh token for userID with its own secret.
func NewRefreshToken(secret, userID string, ttlDays int) (RefreshToken, error) {
	exp := time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour)
	signed, err := sign(secret, jwt.MapClaims{
		"sub": userID,
		"typ": kindRefresh,
		"exp": exp.Unix(),
		"iat": time.Now().UTC().Unix(),
		"jti": uuid.NewString(), // back-to-back rotations must differ
	})
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw and returns its identity.  Errors are always
// ErrTokenExpired or ErrTokenInvalid.
func ParseAccessToken(secret, raw string) (Claims, error) {
	return parse(secret, raw, kindAccess)
}

// ParseRefreshToken is ParseAccessToken for refresh tokens.
func ParseRefreshToken(secret, raw string) (Claims, error) {
	return parse(secret, raw, kindRefresh)
}

// HashRefreshRaw returns the hex SHA-256 of a refresh token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func sign(secret string, claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parse(secret, raw, kind string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrTokenInvalid
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Claims{}, ErrTokenExpired
	}
	if err != nil || !tok.Valid {
		return Claims{}, ErrTokenInvalid
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}
	if typ, _ := mc["typ"].(string); typ != kind {
		return Claims{}, ErrTokenInvalid
	}
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return Claims{}, ErrTokenInvalid
	}
	role, _ := mc["role"].(string)
	return Claims{UserID: sub, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.  A
// value without the "Bearer " scheme yields "".
func BearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
