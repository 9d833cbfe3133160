// Package secrets resolves the provider API key, decrypting it with KMS when
// it is supplied as ciphertext.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/cruxstack/email-verifier-go/internal/config"
)

// MockedKeyID short-circuits decryption in debug mode.
const MockedKeyID = "MOCKED_KEY_ID"

type Decrypter interface {
	Decrypt(ctx context.Context, keyID, ciphertext string) (string, error)
}

// NewDecrypter returns the decrypter selected by APP_KMS_DECRYPT_MODE, or
// nil when no ciphertext is configured.
func NewDecrypter(cfg *config.Config) (Decrypter, error) {
	if cfg.QuickEmailApiKeyCipher == "" {
		return nil, nil
	}

	switch cfg.AppKmsDecryptMode {
	case config.DecryptModeEnvelope:
		return &EnvelopeDecrypter{DebugMode: cfg.DebugMode}, nil
	case config.DecryptModeKMS:
		if cfg.AWSConfig == nil {
			return nil, errors.New("aws config is required for kms decryption")
		}
		return NewKMSDecrypter(*cfg.AWSConfig, cfg.DebugMode), nil
	default:
		return nil, fmt.Errorf("unsupported decrypt mode: %s", cfg.AppKmsDecryptMode)
	}
}

// ResolveAPIKey returns the plaintext key, preferring the ciphertext when
// both are configured.
func ResolveAPIKey(ctx context.Context, cfg *config.Config, d Decrypter) (string, error) {
	if cfg.QuickEmailApiKeyCipher == "" {
		return cfg.QuickEmailApiKey, nil
	}
	if d == nil {
		return "", errors.New("api key ciphertext configured without a decrypter")
	}

	key, err := d.Decrypt(ctx, cfg.AppKmsKeyId, cfg.QuickEmailApiKeyCipher)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt api key: %w", err)
	}
	return key, nil
}
