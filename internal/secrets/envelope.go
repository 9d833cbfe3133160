package secrets

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/chainifynet/aws-encryption-sdk-go/pkg/client"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/clientconfig"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/materials"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/providers/kmsprovider"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/suite"
)

// EnvelopeDecrypter decrypts messages produced by the AWS Encryption SDK
// under a KMS key.
type EnvelopeDecrypter struct {
	DebugMode bool
}

func (d *EnvelopeDecrypter) Decrypt(ctx context.Context, keyID, ciphertext string) (string, error) {
	// mock the decryption for testing - only allowed in debug mode
	if d.DebugMode && keyID == MockedKeyID {
		return ciphertext, nil
	}

	cfg, err := clientconfig.NewConfigWithOpts(
		clientconfig.WithCommitmentPolicy(suite.CommitmentPolicyForbidEncryptAllowDecrypt),
	)
	if err != nil {
		return "", fmt.Errorf("client config setup failed: %w", err)
	}
	c := client.NewClientWithConfig(cfg)

	provider, err := kmsprovider.New(keyID)
	if err != nil {
		return "", fmt.Errorf("kms key provider setup failed: %w", err)
	}

	cmm, err := materials.NewDefault(provider)
	if err != nil {
		return "", fmt.Errorf("materials manager setup failed: %w", err)
	}

	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext is not base64: %w", err)
	}

	plaintext, _, err := c.Decrypt(ctx, blob, cmm)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}
