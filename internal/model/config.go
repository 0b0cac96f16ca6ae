package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AccountConfig declares one mail account in the configuration file.
// Secrets are never stored here; the vault holds them keyed by ID.
type AccountConfig struct {
	// ID is the unique identifier for this account instance.
	ID string `mapstructure:"id" yaml:"id"`

	// Provider is the mail service kind ("GMAIL", "OUTLOOK", "IMAP").
	Provider string `mapstructure:"provider" yaml:"provider"`

	// Email is the mailbox address.
	Email string `mapstructure:"email" yaml:"email"`

	// Name is the user-defined label for this account.
	Name string `mapstructure:"name" yaml:"name"`

	// Enabled controls whether this account is actively polled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// PollIntervalSec is how often (in seconds) to fetch new mail.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// MaxEmailsPerSync bounds one fetch batch.
	MaxEmailsPerSync int `mapstructure:"max_emails_per_sync" yaml:"max_emails_per_sync"`
}

// VaultConfig holds settings for the encrypted credential vault.
type VaultConfig struct {
	// EncryptionKey is the base64-encoded 32-byte AES key protecting
	// credential blobs. The GTDMAIL_ENCRYPTION_KEY environment variable
	// overrides it.
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key"`

	// CredentialDir is where the file keyring backend stores entries
	// when no system keychain is available.
	CredentialDir string `mapstructure:"credential_dir" yaml:"credential_dir"`
}

// StorageConfig holds paths for the local persistence layer.
type StorageConfig struct {
	// DBPath is the SQLite database file.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// BlobDir is the root directory for classification backup blobs.
	BlobDir string `mapstructure:"blob_dir" yaml:"blob_dir"`
}

// OAuthAppConfig holds the OAuth application credentials for one provider.
type OAuthAppConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri" yaml:"redirect_uri"`
}

// AppConfig is the top-level application configuration. It is passed
// explicitly to every constructor that needs it; nothing reads ambient
// global state.
type AppConfig struct {
	Accounts []AccountConfig           `mapstructure:"accounts" yaml:"accounts"`
	Vault    VaultConfig               `mapstructure:"vault" yaml:"vault"`
	Storage  StorageConfig             `mapstructure:"storage" yaml:"storage"`
	OAuth    map[string]OAuthAppConfig `mapstructure:"oauth" yaml:"oauth"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/gtdmail/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "gtdmail", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".config", "gtdmail")
	return &AppConfig{
		Accounts: []AccountConfig{},
		Vault: VaultConfig{
			CredentialDir: filepath.Join(base, "credentials"),
		},
		Storage: StorageConfig{
			DBPath:  filepath.Join(base, "gtdmail.db"),
			BlobDir: filepath.Join(base, "backups"),
		},
		OAuth: map[string]OAuthAppConfig{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := defaultAppConfig()
	v.SetDefault("vault.credential_dir", defaults.Vault.CredentialDir)
	v.SetDefault("storage.db_path", defaults.Storage.DBPath)
	v.SetDefault("storage.blob_dir", defaults.Storage.BlobDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return applyEnv(defaults), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return applyEnv(defaults), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Apply defaults for each account entry.
	for i := range cfg.Accounts {
		if cfg.Accounts[i].PollIntervalSec == 0 {
			cfg.Accounts[i].PollIntervalSec = 300
		}
		if cfg.Accounts[i].MaxEmailsPerSync == 0 {
			cfg.Accounts[i].MaxEmailsPerSync = 50
		}
		if !cfg.Accounts[i].Enabled {
			// Viper unmarshals missing bools as false; treat unset as true.
			key := fmt.Sprintf("accounts.%d.enabled", i)
			if !v.IsSet(key) {
				cfg.Accounts[i].Enabled = true
			}
		}
	}

	return applyEnv(cfg), nil
}

// applyEnv overlays environment variables onto the loaded configuration.
func applyEnv(cfg *AppConfig) *AppConfig {
	if key := os.Getenv("GTDMAIL_ENCRYPTION_KEY"); key != "" {
		cfg.Vault.EncryptionKey = key
	}
	return cfg
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("accounts", cfg.Accounts)
	v.Set("vault", cfg.Vault)
	v.Set("storage", cfg.Storage)
	v.Set("oauth", cfg.OAuth)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
