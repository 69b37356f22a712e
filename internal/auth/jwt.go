package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token roles
const (
	RoleDevice   = "device"
	RoleOperator = "operator"
)

// ErrMissingSecret is returned when an issuer is built without a signing key
var ErrMissingSecret = errors.New("jwt secret is required")

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	DeviceID   string `json:"device_id,omitempty"`
	OperatorID string `json:"operator_id,omitempty"`
	Role       string `json:"role"` // "device" or "operator"
	jwt.RegisteredClaims
}

// Subject returns the device or operator the token was issued to
func (c *JWTClaims) Subject() string {
	if c.Role == RoleDevice {
		return c.DeviceID
	}
	return c.OperatorID
}

// Issuer signs and validates HS256 tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates a token issuer. A zero ttl means 24 hours.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GenerateDeviceToken generates a JWT token for an audio device
func (i *Issuer) GenerateDeviceToken(deviceID string) (string, error) {
	return i.sign(&JWTClaims{DeviceID: deviceID, Role: RoleDevice})
}

// GenerateOperatorToken generates a JWT token for a client controlling the session
func (i *Issuer) GenerateOperatorToken(operatorID string) (string, error) {
	return i.sign(&JWTClaims{OperatorID: operatorID, Role: RoleOperator})
}

func (i *Issuer) sign(claims *JWTClaims) (string, error) {
	now := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
