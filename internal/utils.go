package internal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"runtime"

	"github.com/pkg/errors"
)

func GetBinaryDir() string {
	if runtime.GOOS == "windows" {
		return "C:\\Cognite\\HikEventClient"
	}
	currentDir, _ := os.Getwd()
	return currentDir
}

func newGCM(key string) (cipher.AEAD, error) {
	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return nil, errors.New("key must be 32 bytes")
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "aes cipher")
	}
	return cipher.NewGCM(block)
}

// EncryptString seals text with AES-256-GCM. The random nonce is prepended to
// the ciphertext and the result is base64 url encoded.
func EncryptString(key, text string) (string, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "nonce")
	}
	ciphertext := aesGCM.Seal(nonce, nonce, []byte(text), nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func DecryptString(key, text string) (string, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}
	textBytes, err := base64.URLEncoding.DecodeString(text)
	if err != nil {
		return "", errors.Wrap(err, "decode secret")
	}
	nonceSize := aesGCM.NonceSize()
	if len(textBytes) < nonceSize {
		return "", errors.New("encrypted secret is too short")
	}
	nonce, ciphertext := textBytes[:nonceSize], textBytes[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "decrypt secret")
	}
	return string(plaintext), nil
}
