package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	iterations = 100000
	keyLength  = 16
	nonceSize  = 12
	tagSize    = 16
)

var (
	ErrEmptySecret          = errors.New("vault: master secret and salt are required")
	ErrMalformed            = errors.New("vault: ciphertext is not valid base64")
	ErrCiphertextTooShort   = errors.New("vault: ciphertext shorter than nonce and tag")
	ErrAuthenticationFailed = errors.New("vault: ciphertext authentication failed")
)

// Vault шифрует учетные данные пользователей перед записью в хранилище.
type Vault struct {
	aead cipher.AEAD
	rand io.Reader
}

func New(masterSecret, salt string) (*Vault, error) {
	if masterSecret == "" || salt == "" {
		return nil, ErrEmptySecret
	}
	key, err := pbkdf2.Key(sha256.New, masterSecret, []byte(salt), iterations, keyLength)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return &Vault{aead: aead, rand: rand.Reader}, nil
}

// Encrypt возвращает base64(nonce || tag || ciphertext). Пустая строка остается пустой.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return "", fmt.Errorf("vault: read nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (v *Vault) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < nonceSize+tagSize {
		return "", ErrCiphertextTooShort
	}

	nonce, tag, ct := raw[:nonceSize], raw[nonceSize:nonceSize+tagSize], raw[nonceSize+tagSize:]
	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plain), nil
}
