package secrets

import (
	"context"
	"fmt"
	"net/http"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/tcgmatcher/d1sync/internal/config"
)

// VaultManager implements the SecretManager interface for HashiCorp Vault.
type VaultManager struct {
	client *vault.Client
	cfg    *config.Config
	logger *zap.Logger
}

func NewVaultManager(cfg *config.Config, baseLogger *zap.Logger) (*VaultManager, error) {
	log := baseLogger.Named("vault-manager")
	if !cfg.VaultEnabled {
		log.Info("Vault secret manager is disabled via configuration.")
		return &VaultManager{cfg: cfg, logger: log}, nil
	}

	log.Info("Initializing Vault secret manager", zap.String("address", cfg.VaultAddr))

	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.VaultAddr
	vConfig.Timeout = 10 * time.Second

	tlsConfig := &vault.TLSConfig{
		CACert:   cfg.VaultCACert,
		Insecure: cfg.VaultSkipVerify,
	}
	if err := vConfig.ConfigureTLS(tlsConfig); err != nil {
		return nil, fmt.Errorf("failed to configure Vault TLS: %w", err)
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.VaultToken != "" {
		log.Info("Using Vault token authentication")
		client.SetToken(cfg.VaultToken)
	} else {
		log.Warn("Vault is enabled, but no VAULT_TOKEN provided and other auth methods are not implemented yet.")
	}

	return &VaultManager{
		client: client,
		cfg:    cfg,
		logger: log,
	}, nil
}

func (m *VaultManager) IsEnabled() bool {
	return m.cfg != nil && m.cfg.VaultEnabled && m.client != nil
}

// GetCredentials retrieves the object-store key pair from Vault's KV v2 engine.
func (m *VaultManager) GetCredentials(ctx context.Context, path, accessKeyKey, secretKeyKey string) (*Credentials, error) {
	if !m.IsEnabled() {
		return nil, fmt.Errorf("Vault manager is not enabled or not initialized")
	}
	if path == "" {
		return nil, fmt.Errorf("Vault secret path cannot be empty")
	}
	if accessKeyKey == "" {
		accessKeyKey = "access_key_id"
	}
	if secretKeyKey == "" {
		secretKeyKey = "secret_access_key"
	}

	log := m.logger.With(zap.String("vault_path", path))
	log.Info("Attempting to read secret from Vault KV v2",
		zap.String("access_key_key", accessKeyKey),
		zap.String("secret_key_key", secretKeyKey))

	secret, err := m.client.KVv2("secret").Get(ctx, path)
	if err != nil {
		if vaultErr, ok := err.(*vault.ResponseError); ok && vaultErr.StatusCode == http.StatusNotFound {
			log.Error("Secret not found in Vault", zap.Error(err))
			return nil, fmt.Errorf("secret '%s' not found in Vault: %w", path, err)
		}
		log.Error("Failed to read secret from Vault", zap.Error(err))
		return nil, fmt.Errorf("failed to read secret '%s' from Vault: %w", path, err)
	}

	if secret == nil || secret.Data == nil {
		log.Error("Vault secret data is empty or malformed (expected KV v2 format)")
		return nil, fmt.Errorf("secret data for '%s' is empty or not in expected KV v2 format", path)
	}

	accessVal, aOk := secret.Data[accessKeyKey]
	secretVal, sOk := secret.Data[secretKeyKey]

	if !aOk || accessVal == nil {
		log.Error("Access key field not found or is null in Vault secret data", zap.String("key_used", accessKeyKey))
		return nil, fmt.Errorf("access key field '%s' not found or is null in secret '%s'", accessKeyKey, path)
	}
	if !sOk || secretVal == nil {
		log.Error("Secret key field not found or is null in Vault secret data", zap.String("key_used", secretKeyKey))
		return nil, fmt.Errorf("secret key field '%s' not found or is null in secret '%s'", secretKeyKey, path)
	}

	accessKey, aStrOk := accessVal.(string)
	secretKey, sStrOk := secretVal.(string)
	if !aStrOk || accessKey == "" {
		return nil, fmt.Errorf("access key value in secret '%s' is not a non-empty string", path)
	}
	if !sStrOk || secretKey == "" {
		return nil, fmt.Errorf("secret key value in secret '%s' is not a non-empty string", path)
	}

	log.Info("Successfully retrieved object-store key pair from Vault.")
	return &Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey}, nil
}
