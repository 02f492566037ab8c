// Package secrets decrypts the mail account password. The password is kept
// as a Fernet token in one file and the key in another.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/fernet/fernet-go"
)

// ErrInvalidToken is returned when the password file was not produced with
// the given key or has been tampered with.
var ErrInvalidToken = errors.New("password token does not verify against key")

// DecryptPassword reads the encrypted password and its key and returns the
// plaintext credential.
func DecryptPassword(passwordFile, keyFile string) (string, error) {
	token, err := os.ReadFile(passwordFile)
	if err != nil {
		return "", fmt.Errorf("reading password file: %w", err)
	}
	rawKey, err := os.ReadFile(keyFile)
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}

	key, err := fernet.DecodeKey(string(bytes.TrimSpace(rawKey)))
	if err != nil {
		return "", fmt.Errorf("decoding key from %s: %w", keyFile, err)
	}

	// Negative TTL: tokens never expire.
	plain := fernet.VerifyAndDecrypt(bytes.TrimSpace(token), -1, []*fernet.Key{key})
	if plain == nil {
		return "", ErrInvalidToken
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("decrypted password is not valid UTF-8")
	}
	return string(plain), nil
}

// EncryptPassword generates a new key, encrypts password with it and writes
// the token and the key to their files with owner-only permissions.
func EncryptPassword(password, passwordFile, keyFile string) error {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	token, err := fernet.EncryptAndSign([]byte(password), &key)
	if err != nil {
		return fmt.Errorf("encrypting password: %w", err)
	}
	if err := os.WriteFile(keyFile, []byte(key.Encode()), 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := os.WriteFile(passwordFile, token, 0o600); err != nil {
		return fmt.Errorf("writing password file: %w", err)
	}
	return nil
}
