package apikey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/blake2b"
)

const (
	rawKeyPrefix = "sk_"
	keyIDPrefix  = "key_"
)

// Hasher produces keyed BLAKE2b-256 digests of raw keys.
type Hasher struct {
	key []byte
}

// NewHasher derives the MAC key from secret. Secrets longer than the
// BLAKE2b key limit are compressed with BLAKE2b-512 first.
func NewHasher(secret string) *Hasher {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Hasher{key: key}
}

func (h *Hasher) Hash(raw string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// unreachable: key length is bounded in NewHasher
		panic(err)
	}
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *Hasher) Equal(raw, hashed string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(raw)), []byte(hashed)) == 1
}

func newRawKey(r io.Reader) (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return rawKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func newKeyID(r io.Reader) (string, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return keyIDPrefix + hex.EncodeToString(buf), nil
}

var defaultRandom io.Reader = rand.Reader
