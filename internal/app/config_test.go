package app

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/florianilch/vaultbackup/internal/credentials"
	"github.com/florianilch/vaultbackup/internal/observability"
)

func TestDefault(t *testing.T) {
	t.Setenv("HOME", "/home/ops")
	t.Setenv("XDG_STATE_HOME", "")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if cfg.Backup.Root != filepath.Join("/home/ops", "backups", "vault") {
		t.Errorf("Backup.Root = %s", cfg.Backup.Root)
	}
	if cfg.Mount.Path != cfg.Backup.Root {
		t.Errorf("Mount.Path = %s, want backup root", cfg.Mount.Path)
	}
	if cfg.Log.File != filepath.Join("/home/ops", ".local", "state", "vaultbackup", "vaultbackup.log") {
		t.Errorf("Log.File = %s", cfg.Log.File)
	}
	if cfg.Mount.RetryCount != DefaultConfigMountRetryCount || cfg.Mount.RetryDelay != DefaultConfigMountRetryDelay {
		t.Errorf("Mount retry = %d x %s", cfg.Mount.RetryCount, cfg.Mount.RetryDelay)
	}
	if cfg.Log.MaxSizeMB != DefaultConfigLogMaxSizeMB || cfg.Log.MaxBackups != 1 {
		t.Errorf("Log rotation = %d MB, %d backups", cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	}
	if cfg.Credentials.PasswordEnv != credentials.DefaultPasswordEnv {
		t.Errorf("PasswordEnv = %s", cfg.Credentials.PasswordEnv)
	}
	if cfg.Credentials.KeyringUser == "" {
		t.Error("KeyringUser not detected")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestApplyDefaults_XDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/lib/ops/state")

	cfg := &Config{Backup: BackupConfig{Root: "/mnt/backup"}}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}
	if cfg.Log.File != filepath.Join("/var/lib/ops/state", "vaultbackup", "vaultbackup.log") {
		t.Errorf("Log.File = %s", cfg.Log.File)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Backup: BackupConfig{Root: "/mnt/nas/vault"},
		Mount:  MountConfig{Path: "/mnt/nas", RetryCount: 3, RetryDelay: 5 * time.Second},
		Log:    LogConfig{File: "/var/log/vaultbackup.log", Format: LogFormatJSON},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}

	if cfg.Mount.Path != "/mnt/nas" || cfg.Mount.RetryCount != 3 || cfg.Mount.RetryDelay != 5*time.Second {
		t.Errorf("Mount = %+v", cfg.Mount)
	}
	if cfg.Log.File != "/var/log/vaultbackup.log" || cfg.Log.Format != LogFormatJSON {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown credential source", mutate: func(c *Config) { c.Credentials.Source = "vault" }, wantErr: "Source"},
		{name: "zero retries", mutate: func(c *Config) { c.Mount.RetryCount = -1 }, wantErr: "RetryCount"},
		{name: "negative delay", mutate: func(c *Config) { c.Mount.RetryDelay = -time.Second }, wantErr: "RetryDelay"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "Format"},
		{name: "bad server url", mutate: func(c *Config) { c.Vault.ServerURL = "not a url" }, wantErr: "ServerURL"},
		{name: "bad exporter", mutate: func(c *Config) { c.Telemetry.Exporter = "zipkin" }, wantErr: "Exporter"},
		{
			name: "endpoint without otlp exporter",
			mutate: func(c *Config) {
				c.Telemetry.Exporter = observability.ExporterStdout
				c.Telemetry.Endpoint = "http://collector:4318"
			},
			wantErr: "otlp exporter",
		},
		{
			name: "otlp endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Exporter = observability.ExporterOTLPHTTP
				c.Telemetry.Endpoint = "http://collector:4318"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Backup: BackupConfig{Root: "/mnt/backup"}}
			if err := cfg.ApplyDefaults(); err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestVariantDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.CredentialSource(VariantService); got != CredentialSourceEnv {
		t.Errorf("service credential source = %s", got)
	}
	if got := cfg.CredentialSource(VariantInteractive); got != CredentialSourcePrompt {
		t.Errorf("interactive credential source = %s", got)
	}
	if !cfg.MountWait(VariantService) || cfg.MountWait(VariantInteractive) {
		t.Error("mount wait defaults wrong")
	}

	wait := true
	cfg.Mount.Wait = &wait
	cfg.Credentials.Source = CredentialSourceKeyring
	if !cfg.MountWait(VariantInteractive) {
		t.Error("explicit mount wait ignored")
	}
	if got := cfg.CredentialSource(VariantInteractive); got != CredentialSourceKeyring {
		t.Errorf("explicit credential source ignored: %s", got)
	}
}

func TestNewCredentialSource(t *testing.T) {
	keyring.MockInit()

	cfg := &Config{Backup: BackupConfig{Root: "/mnt/backup"}}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}

	src, err := cfg.NewCredentialSource(VariantService)
	if err != nil {
		t.Fatalf("env source error = %v", err)
	}
	if _, ok := src.(*credentials.EnvSource); !ok {
		t.Errorf("service source = %T, want *credentials.EnvSource", src)
	}

	cfg.Credentials.Source = CredentialSourceKeyring
	src, err = cfg.NewCredentialSource(VariantService)
	if err != nil {
		t.Fatalf("keyring source error = %v", err)
	}
	if _, ok := src.(*credentials.KeyringSource); !ok {
		t.Errorf("keyring source = %T", src)
	}
}

func TestCleanupEnv(t *testing.T) {
	cfg := &Config{Credentials: CredentialsConfig{
		ClientIDEnv:     "VAULT_ID",
		ClientSecretEnv: "BW_CLIENTSECRET",
		PasswordEnv:     "VAULT_PASSWORD",
	}}

	got := cfg.CleanupEnv()
	want := []string{"VAULT_ID", "BW_CLIENTSECRET", "VAULT_PASSWORD", "BW_CLIENTID", "BW_PASSWORD", "BW_SESSION"}
	if !slices.Equal(got, want) {
		t.Errorf("CleanupEnv() = %v, want %v", got, want)
	}
}

func TestClearCredentialEnv(t *testing.T) {
	cfg := &Config{Credentials: CredentialsConfig{
		ClientIDEnv:     "VAULT_ID",
		ClientSecretEnv: "VAULT_SECRET",
		PasswordEnv:     "VAULT_PASSWORD",
	}}
	for _, key := range []string{"VAULT_ID", "VAULT_SECRET", "VAULT_PASSWORD", credentials.DefaultPasswordEnv, "UNRELATED"} {
		t.Setenv(key, "value")
	}

	if err := ClearCredentialEnv(cfg); err != nil {
		t.Fatalf("ClearCredentialEnv() error = %v", err)
	}
	for _, key := range []string{"VAULT_ID", "VAULT_SECRET", "VAULT_PASSWORD", credentials.DefaultPasswordEnv} {
		if _, ok := os.LookupEnv(key); ok {
			t.Errorf("%s still set", key)
		}
	}
	if os.Getenv("UNRELATED") != "value" {
		t.Error("unrelated variable cleared")
	}

	t.Setenv(credentials.DefaultClientSecretEnv, "s3cret")
	if err := ClearCredentialEnv(nil); err != nil {
		t.Fatalf("ClearCredentialEnv(nil) error = %v", err)
	}
	if _, ok := os.LookupEnv(credentials.DefaultClientSecretEnv); ok {
		t.Error("default client secret variable still set")
	}
}
