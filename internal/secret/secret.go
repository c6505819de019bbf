// Package secret encrypts exchange credentials at rest.
//
// Values are AES-256-CBC with PKCS#7 padding, encoded as hex(iv):hex(ct).
// The key is scrypt(passphrase, "salt", N=16384, r=8, p=1), which matches
// what the dashboard has always written to api_credentials.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

var ErrMalformed = errors.New("secret: malformed ciphertext")

const keySalt = "salt"

// Box seals and opens strings with a key derived from a passphrase.
type Box struct {
	block cipher.Block
}

// New derives the AES key from passphrase.
func New(passphrase string) (*Box, error) {
	key, err := scrypt.Key([]byte(passphrase), []byte(keySalt), 16384, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("secret: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: cipher: %w", err)
	}
	return &Box{block: block}, nil
}

// Encrypt returns hex(iv):hex(ciphertext) under a fresh random IV.
func (b *Box) Encrypt(plain string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("secret: iv: %w", err)
	}
	data := pad([]byte(plain))
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(b.block, iv).CryptBlocks(out, data)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt opens value, returning it unchanged if it cannot be decrypted.
// Rows saved before encryption was enabled read back as plain text.
func (b *Box) Decrypt(value string) string {
	plain, err := b.DecryptStrict(value)
	if err != nil {
		return value
	}
	return plain
}

// DecryptStrict opens value or reports why it could not.
func (b *Box) DecryptStrict(value string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(value, ":")
	if !ok {
		return "", ErrMalformed
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrMalformed
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(b.block, iv).CryptBlocks(out, ct)
	plain, err := unpad(out)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrMalformed)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrMalformed)
		}
	}
	return b[:len(b)-n], nil
}
