package secrets

import "context"

// Credentials holds a retrieved object-store key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// SecretManager defines the interface for interacting with different secret backends.
type SecretManager interface {
	// GetCredentials retrieves an access key pair from the secret manager.
	// pathOrID specifies the location of the secret; accessKeyKey and
	// secretKeyKey name the fields within the secret data.
	GetCredentials(ctx context.Context, pathOrID string, accessKeyKey string, secretKeyKey string) (*Credentials, error)

	// IsEnabled checks if this specific secret manager is configured and enabled.
	IsEnabled() bool
}
