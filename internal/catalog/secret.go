package catalog

import (
	"context"
	"encoding/base64"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/fretlog/fretlog/internal/config"
)

// Decrypter is the subset of the KMS API needed to recover the client secret.
type Decrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// NewKMSDecrypter creates a KMS client from the default AWS configuration
// chain.
func NewKMSDecrypter(ctx context.Context) (Decrypter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for KMS: %w", err)
	}

	return kms.NewFromConfig(awsCfg), nil
}

// ResolveClientSecret returns the plaintext client secret. A configured
// ciphertext is base64 decoded and decrypted with decrypter, which may be nil
// when only a plaintext secret is configured.
func ResolveClientSecret(ctx context.Context, cfg config.CatalogConfig, decrypter Decrypter) (string, error) {
	if cfg.ClientSecretKMSCiphertext == "" {
		return cfg.ClientSecret, nil
	}

	if decrypter == nil {
		return "", fmt.Errorf("a KMS client is required to decrypt the catalog client secret")
	}

	blob, err := base64.StdEncoding.DecodeString(cfg.ClientSecretKMSCiphertext)
	if err != nil {
		return "", fmt.Errorf("catalog client secret ciphertext is not valid base64: %w", err)
	}

	out, err := decrypter.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: blob,
	})
	if err != nil {
		return "", fmt.Errorf("decrypting catalog client secret: %w", err)
	}

	if len(out.Plaintext) == 0 {
		return "", fmt.Errorf("decrypted catalog client secret is empty")
	}

	return string(out.Plaintext), nil
}
