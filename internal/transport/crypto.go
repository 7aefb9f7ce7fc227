package transport

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

// SessionKeyBytes is the AES-256 key length.
const SessionKeyBytes = 32

// ErrBadPadding is returned when decrypted data does not carry valid PKCS#7 padding.
var ErrBadPadding = errors.New("invalid padding")

// GenerateSessionKey returns a fresh AES key and CBC initialisation vector.
func GenerateSessionKey() (key, iv []byte, err error) {
	key = make([]byte, SessionKeyBytes)
	iv = make([]byte, aes.BlockSize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("generating key: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generating iv: %w", err)
	}
	return key, iv, nil
}

// EncryptOAEP encrypts msg for pub using RSA-OAEP with SHA-256.
func EncryptOAEP(pub *rsa.PublicKey, msg []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, msg, nil)
}

// DecryptOAEP reverses EncryptOAEP.
func DecryptOAEP(priv *rsa.PrivateKey, ct []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
}

// SessionCipher is AES-CBC with PKCS#7 padding under one key and IV for the
// whole session.
type SessionCipher struct {
	block cipher.Block
	iv    []byte
}

// NewSessionCipher builds a SessionCipher.
//
// Precondition: key is 16, 24 or 32 bytes; iv is aes.BlockSize bytes.
func NewSessionCipher(key, iv []byte) (*SessionCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return &SessionCipher{block: block, iv: append([]byte(nil), iv...)}, nil
}

// Encrypt pads and encrypts plain.
func (s *SessionCipher) Encrypt(plain []byte) []byte {
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(s.block, s.iv).CryptBlocks(out, padded)
	return out
}

// Decrypt decrypts and unpads ct.
func (s *SessionCipher) Decrypt(ct []byte) ([]byte, error) {
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a positive multiple of %d", len(ct), aes.BlockSize)
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(s.block, s.iv).CryptBlocks(out, ct)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
