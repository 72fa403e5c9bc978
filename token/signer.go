package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/pkg/errors"
)

const issuer = "device-console"

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// SessionClaims is the payload of the console session cookie.
// The cookie only points at a server side session, it never carries backend credentials.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Signer signs and verifies console session cookies
type Signer interface {
	Sign(sessionID, username string, ttl time.Duration) (string, error)
	Parse(tokenString string) (*SessionClaims, error)
}

// HMACsigner implements Signer using symmetric HMAC-SHA256
type HMACsigner struct {
	secret []byte
}

var _ Signer = (*HMACsigner)(nil)

// NewHMACSigner creates a new HMAC signer with a key derived from secret
func NewHMACSigner(secret string) (*HMACsigner, error) {
	key, err := DeriveKey(secret, PurposeCookie, 32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive cookie signing key")
	}
	return &HMACsigner{secret: key}, nil
}

func (h *HMACsigner) Sign(sessionID, username string, ttl time.Duration) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	now := NowTimeFunc()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID,
	}
	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACsigner) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, h.verificationKey,
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, consoleerrors.Wrapf(consoleerrors.ErrTokenExpired, "session cookie")
		}
		return nil, consoleerrors.Wrapf(consoleerrors.ErrInvalidToken, "session cookie: %v", err)
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, consoleerrors.Wrapf(consoleerrors.ErrInvalidToken, "session cookie")
	}
	return claims, nil
}

func (h *HMACsigner) verificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}
