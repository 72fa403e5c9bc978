package sessions

import (
	"crypto/rand"
	"encoding/json"
	"io"

	"github.com/jrsteele09/device-console/token"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Codec turns markers into bytes for stores that persist outside the process
type Codec interface {
	Encode(m *Marker) ([]byte, error)
	Decode(data []byte) (*Marker, error)
}

// JSONCodec stores markers as plain JSON
type JSONCodec struct{}

func (JSONCodec) Encode(m *Marker) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode session marker")
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (*Marker, error) {
	m := &Marker{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "decode session marker")
	}
	return m, nil
}

// SealedCodec encrypts the JSON form with secretbox so backend cookies are
// not readable from the database or redis.
type SealedCodec struct {
	key [32]byte
}

// NewSealedCodec derives the sealing key from the session secret
func NewSealedCodec(secret string) (*SealedCodec, error) {
	key, err := token.DeriveKey(secret, token.PurposeSealer, 32)
	if err != nil {
		return nil, errors.Wrap(err, "derive sealing key")
	}
	c := &SealedCodec{}
	copy(c.key[:], key)
	return c, nil
}

func (c *SealedCodec) Encode(m *Marker) ([]byte, error) {
	plain, err := JSONCodec{}.Encode(m)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &c.key), nil
}

func (c *SealedCodec) Decode(data []byte) (*Marker, error) {
	if len(data) < nonceSize+secretbox.Overhead {
		return nil, errors.New("sealed session marker is too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &c.key)
	if !ok {
		return nil, errors.New("sealed session marker failed authentication")
	}
	return JSONCodec{}.Decode(plain)
}
