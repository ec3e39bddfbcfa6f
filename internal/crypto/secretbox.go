// Package crypto seals broker credentials at rest. A sealed secret is a
// small JSON document: PBKDF2-HMAC-SHA256 derives an AES-256-GCM key from a
// password and a random salt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	sealedVersion    = 1
	minPasswordLen   = 8
)

// ErrNoSecret is returned by LoadSecret when no source is configured.
var ErrNoSecret = errors.New("crypto: no secret source configured")

type sealedJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// SecretSource says where a secret comes from. Raw wins over SealedPath.
type SecretSource struct {
	Raw        string
	SealedPath string
	Password   string
}

// Seal encrypts secret with password and returns the JSON document to store.
func Seal(secret, password string) ([]byte, error) {
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("crypto: password must be at least %d characters", minPasswordLen)
	}
	if secret == "" {
		return nil, errors.New("crypto: empty secret")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(sealedJSON{
		Version:    sealedVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(secret), nil)),
	}, "", "  ")
}

// Open decrypts a document produced by Seal.
func Open(sealed []byte, password string) (string, error) {
	var doc sealedJSON
	if err := json.Unmarshal(sealed, &doc); err != nil {
		return "", fmt.Errorf("crypto: parse sealed secret: %w", err)
	}
	if doc.Version != sealedVersion {
		return "", fmt.Errorf("crypto: unsupported sealed secret version %d", doc.Version)
	}

	var salt, nonce, ciphertext []byte
	for _, f := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", doc.Salt, &salt},
		{"nonce", doc.Nonce, &nonce},
		{"ciphertext", doc.Ciphertext, &ciphertext},
	} {
		b, err := base64.StdEncoding.DecodeString(f.in)
		if err != nil {
			return "", fmt.Errorf("crypto: decode %s: %w", f.name, err)
		}
		*f.out = b
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: nonce length %d", len(nonce))
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt failed (wrong password?): %w", err)
	}
	return string(plain), nil
}

// LoadSecret resolves src: the raw value if set, otherwise the sealed file
// opened with the password.
func LoadSecret(src SecretSource) (string, error) {
	if raw := strings.TrimSpace(src.Raw); raw != "" {
		return raw, nil
	}
	if src.SealedPath == "" {
		return "", ErrNoSecret
	}
	data, err := os.ReadFile(src.SealedPath)
	if err != nil {
		return "", fmt.Errorf("crypto: read sealed secret: %w", err)
	}
	return Open(data, src.Password)
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}
