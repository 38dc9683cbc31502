package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/vaultbackup/internal/backup"
	"github.com/florianilch/vaultbackup/internal/credentials"
	"github.com/florianilch/vaultbackup/internal/observability"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// CredentialSourceType represents where a run reads its vault credentials from.
type CredentialSourceType string

const (
	CredentialSourceEnv     CredentialSourceType = "env"
	CredentialSourceKeyring CredentialSourceType = "keyring"
	CredentialSourcePrompt  CredentialSourceType = "prompt"
)

// Variant distinguishes the unattended service run from the operator-driven one.
type Variant string

const (
	// VariantService reads credentials without interaction, waits for the mount and logs to a file.
	VariantService Variant = "service"
	// VariantInteractive prompts for credentials and logs to stdout.
	VariantInteractive Variant = "interactive"
)

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigLogMaxSizeMB      = 10
	DefaultConfigLogMaxBackups     = 1
	DefaultConfigVaultCLIPath      = "bw"
	DefaultConfigMountRetryCount   = 10
	DefaultConfigMountRetryDelay   = 30 * time.Second
	DefaultConfigKeyringService    = "vaultbackup"
	DefaultConfigTelemetryExporter = observability.ExporterNone
)

// LogConfig holds log output configuration. The file is only used by service runs.
type LogConfig struct {
	Format     LogFormat `json:"format" validate:"oneof=text json"`
	File       string    `json:"file" validate:"required"`
	MaxSizeMB  int       `json:"max_size_mb" validate:"gte=1"`
	MaxBackups int       `json:"max_backups" validate:"gte=0"`
}

// VaultConfig holds vault CLI configuration.
type VaultConfig struct {
	CLIPath string `json:"cli_path" validate:"required"`
	// ServerURL of a self-hosted instance; empty keeps the CLI's current server.
	ServerURL string `json:"server_url" validate:"omitempty,url"`
}

// BackupConfig holds output configuration.
type BackupConfig struct {
	Root string `json:"root" validate:"required"`
}

// MountConfig holds the mount readiness policy.
type MountConfig struct {
	// Path polled before writing; defaults to the backup root.
	Path string `json:"path"`
	// Wait enables polling. Unset means: wait for service runs only.
	Wait       *bool         `json:"wait,omitempty"`
	RetryCount int           `json:"retry_count" validate:"gte=1"`
	RetryDelay time.Duration `json:"retry_delay" validate:"gt=0"`
}

// CredentialsConfig describes how to construct the credential source.
type CredentialsConfig struct {
	// Source type; unset means env for service runs and prompt for interactive runs.
	Source CredentialSourceType `json:"source,omitempty" validate:"omitempty,oneof=env keyring prompt"`

	// Env source settings
	ClientIDEnv     string `json:"client_id_env" validate:"required"`
	ClientSecretEnv string `json:"client_secret_env" validate:"required"`
	PasswordEnv     string `json:"password_env" validate:"required"`

	// Keyring source settings
	KeyringService string `json:"keyring_service" validate:"required"`
	KeyringUser    string `json:"keyring_user" validate:"required"`
}

// TelemetryConfig holds optional OpenTelemetry log export configuration.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=none stdout otlphttp otlpgrpc"`
	Endpoint string                 `json:"endpoint,omitempty" validate:"omitempty,url"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level        `json:"log_level"`
	Log         LogConfig         `json:"log"`
	Vault       VaultConfig       `json:"vault"`
	Backup      BackupConfig      `json:"backup"`
	Mount       MountConfig       `json:"mount"`
	Credentials CredentialsConfig `json:"credentials"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.Log.Format == "" {
		c.Log.Format = DefaultConfigLogFormat
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultConfigLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = DefaultConfigLogMaxBackups
	}
	if c.Vault.CLIPath == "" {
		c.Vault.CLIPath = DefaultConfigVaultCLIPath
	}
	if c.Mount.RetryCount == 0 {
		c.Mount.RetryCount = DefaultConfigMountRetryCount
	}
	if c.Mount.RetryDelay == 0 {
		c.Mount.RetryDelay = DefaultConfigMountRetryDelay
	}
	if c.Credentials.ClientIDEnv == "" {
		c.Credentials.ClientIDEnv = credentials.DefaultClientIDEnv
	}
	if c.Credentials.ClientSecretEnv == "" {
		c.Credentials.ClientSecretEnv = credentials.DefaultClientSecretEnv
	}
	if c.Credentials.PasswordEnv == "" {
		c.Credentials.PasswordEnv = credentials.DefaultPasswordEnv
	}
	if c.Credentials.KeyringService == "" {
		c.Credentials.KeyringService = DefaultConfigKeyringService
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}

	// Dynamic defaults based on the environment
	if c.Backup.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("backup.root required (auto-detect failed: %w)", err)
		}
		c.Backup.Root = filepath.Join(home, "backups", "vault")
	}
	if c.Mount.Path == "" {
		c.Mount.Path = c.Backup.Root
	}
	if c.Log.File == "" {
		stateDir, err := userStateDir()
		if err != nil {
			return fmt.Errorf("log.file required (auto-detect failed: %w)", err)
		}
		c.Log.File = filepath.Join(stateDir, "vaultbackup", "vaultbackup.log")
	}
	if c.Credentials.KeyringUser == "" {
		currentUser, err := user.Current()
		if err != nil {
			return fmt.Errorf("credentials.keyring_user required (auto-detect failed: %w)", err)
		}
		c.Credentials.KeyringUser = currentUser.Username
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Telemetry.Endpoint != "" && (c.Telemetry.Exporter != observability.ExporterOTLPHTTP && c.Telemetry.Exporter != observability.ExporterOTLPGRPC) {
		return errors.New("telemetry.endpoint requires an otlp exporter")
	}

	return nil
}

// CredentialSource returns the configured source type, resolving the variant default.
func (c *Config) CredentialSource(variant Variant) CredentialSourceType {
	if c.Credentials.Source != "" {
		return c.Credentials.Source
	}
	if variant == VariantInteractive {
		return CredentialSourcePrompt
	}
	return CredentialSourceEnv
}

// MountWait reports whether a run of the given variant polls the mount.
func (c *Config) MountWait(variant Variant) bool {
	if c.Mount.Wait != nil {
		return *c.Mount.Wait
	}
	return variant == VariantService
}

// NewCredentialSource creates a credentials.Source from the configuration.
func (c *Config) NewCredentialSource(variant Variant) (credentials.Source, error) {
	switch c.CredentialSource(variant) {
	case CredentialSourceEnv:
		return credentials.NewEnvSource(c.Credentials.ClientIDEnv, c.Credentials.ClientSecretEnv, c.Credentials.PasswordEnv, nil)
	case CredentialSourceKeyring:
		return c.NewKeyringSource()
	case CredentialSourcePrompt:
		return credentials.NewPromptSource()
	default:
		return nil, fmt.Errorf("unsupported credential source: %s", c.Credentials.Source)
	}
}

// NewKeyringSource creates the keyring source, also used to manage stored credentials.
func (c *Config) NewKeyringSource() (*credentials.KeyringSource, error) {
	return credentials.NewKeyringSource(c.Credentials.KeyringService, c.Credentials.KeyringUser)
}

// CleanupEnv lists the variables cleared from the process environment after a run:
// the configured credential variables plus the CLI's own credential and session variables.
func (c *Config) CleanupEnv() []string {
	env := []string{
		c.Credentials.ClientIDEnv,
		c.Credentials.ClientSecretEnv,
		c.Credentials.PasswordEnv,
	}
	for _, key := range backup.DefaultCleanupEnv {
		if !slices.Contains(env, key) {
			env = append(env, key)
		}
	}
	return env
}

// ClearCredentialEnv unsets the credential variables of cfg from the process
// environment. A nil cfg clears the CLI's default variables, for runs that failed
// before their configuration was loaded.
func ClearCredentialEnv(cfg *Config) error {
	keys := backup.DefaultCleanupEnv
	if cfg != nil {
		keys = cfg.CleanupEnv()
	}

	var errs []error
	for _, key := range keys {
		if err := os.Unsetenv(key); err != nil {
			errs = append(errs, fmt.Errorf("unsetting %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// userStateDir follows the XDG base directory layout for state files.
func userStateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state"), nil
}
