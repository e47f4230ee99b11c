package internal

import (
	"os"

	"github.com/pkg/errors"
)

type SecretManager struct {
	Key     string
	Secrets map[string]string // map of decrypted secrets
}

func NewSecretManager(key string) *SecretManager {
	return &SecretManager{Key: key, Secrets: map[string]string{}}
}

// LoadEncryptedSecrets decrypts secrets and stores them in the internal store.
// Secrets that fail to decrypt are skipped and reported in the returned error.
func (sm *SecretManager) LoadEncryptedSecrets(secrets map[string]string) error {
	var failed []string
	for k, v := range secrets {
		plain, err := DecryptString(sm.Key, v)
		if err != nil {
			failed = append(failed, k)
			continue
		}
		sm.Secrets[k] = plain
	}
	if len(failed) > 0 {
		return errors.Errorf("failed to decrypt secrets %v", failed)
	}
	return nil
}

// LoadSecrets loads secrets in plain text into the internal store
func (sm *SecretManager) LoadSecrets(secrets map[string]string) {
	for k, v := range secrets {
		sm.Secrets[k] = v
	}
}

// GetSecret returns secret either from internal secret store or from ENV variable if it is not found in the store.
// If secret is not found in ENV variable, returns key (plain text)
func (sm *SecretManager) GetSecret(key string) string {
	if secret, ok := sm.Secrets[key]; ok {
		return secret
	}
	if secret := os.Getenv(key); secret != "" {
		return secret
	}
	return key
}

func (sm *SecretManager) GetEncryptedSecrets() (map[string]string, error) {
	encryptedSecrets := map[string]string{}
	for k, v := range sm.Secrets {
		enc, err := EncryptString(sm.Key, v)
		if err != nil {
			return nil, err
		}
		encryptedSecrets[k] = enc
	}
	return encryptedSecrets, nil
}
