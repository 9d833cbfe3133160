package secrets

import (
	"context"
	"encoding/base64"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// KMSDecrypter decrypts base64 ciphertext produced by a direct KMS Encrypt.
type KMSDecrypter struct {
	Client    *kms.Client
	DebugMode bool
}

func NewKMSDecrypter(cfg aws.Config, debugMode bool) *KMSDecrypter {
	return &KMSDecrypter{Client: kms.NewFromConfig(cfg), DebugMode: debugMode}
}

func (d *KMSDecrypter) Decrypt(ctx context.Context, keyID, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	// mock the decryption for testing
	if d.DebugMode && keyID == MockedKeyID {
		return ciphertext, nil
	}

	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	out, err := d.Client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: blob,
		KeyId:          aws.String(keyID),
	})
	if err != nil {
		return "", err
	}

	return string(out.Plaintext), nil
}
