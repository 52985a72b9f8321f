// Package crypto encrypts and decrypts tenant cloud credentials.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecryption is returned whenever ciphertext cannot be authenticated
// and decrypted. Tampered input never yields a plaintext.
var ErrDecryption = errors.New("failed to decrypt data")

const (
	keyLen       = 32
	pbkdf2Rounds = 100_000
	nonceLen     = 12
)

// Derivation salt is fixed so independently constructed services with the
// same passphrase interoperate.
var kdfSalt = []byte("stable_salt_for_aws_creds")

// Service is the interface for credential encryption.
type Service interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	DecryptCredentials(accessKey, secretKey, sessionToken string) (Credentials, error)
}

// Credentials are decrypted AWS credentials. The session token is empty
// for long-lived keys.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

type service struct {
	aead cipher.AEAD
}

// NewService derives an AES-256-GCM key from the passphrase and returns
// a ready service. The passphrase never leaves this constructor.
func NewService(passphrase string) (Service, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase is required")
	}
	key := pbkdf2.Key([]byte(passphrase), kdfSalt, pbkdf2Rounds, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize aead: %w", err)
	}
	return &service{aead: aead}, nil
}

// Encrypt seals the plaintext and returns a url-safe base64 token.
// Empty input encrypts to the empty string.
func (s *service) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. Malformed or tampered
// input fails with ErrDecryption.
func (s *service) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(raw) <= nonceLen {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	plaintext, err := s.aead.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	return string(plaintext), nil
}

// DecryptCredentials decrypts a full credential set. The session token
// argument may be empty.
func (s *service) DecryptCredentials(accessKey, secretKey, sessionToken string) (Credentials, error) {
	ak, err := s.Decrypt(accessKey)
	if err != nil {
		return Credentials{}, err
	}
	sk, err := s.Decrypt(secretKey)
	if err != nil {
		return Credentials{}, err
	}
	st, err := s.Decrypt(sessionToken)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{AccessKeyID: ak, SecretAccessKey: sk, SessionToken: st}, nil
}
