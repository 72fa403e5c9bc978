package token

import (
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// Key purposes. Each purpose gets an independent key from the same secret.
const (
	PurposeCookie = "console-session-cookie"
	PurposeSealer = "session-credential-sealer"
)

// DeriveKey expands secret into a key of the requested size for purpose
func DeriveKey(secret, purpose string, size int) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("secret is required")
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose)), key); err != nil {
		return nil, errors.Wrap(err, "hkdf")
	}
	return key, nil
}
