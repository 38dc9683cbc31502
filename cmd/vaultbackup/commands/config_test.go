package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/vaultbackup/internal/app"
)

const testConfigTOML = `
log_level = "DEBUG"

[backup]
root = "/mnt/nas/vault"

[mount]
retry_count = 5
retry_delay = "2s"
wait = false

[vault]
server_url = "https://vault.example.com"

[credentials]
source = "keyring"
keyring_user = "ops"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultbackup.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// runWithConfig parses args against the backup flags and loads the config from them.
func runWithConfig(t *testing.T, args []string, environ []string) *app.Config {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var cfg *app.Config

	cmd := &cli.Command{
		Name: "vaultbackup",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config"},
			&cli.StringFlag{Name: "log-level"},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Flags: backupFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					var err error
					cfg, err = loadConfig(cmd.String("config"), cmd, func() []string { return environ })
					return err
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), append([]string{"vaultbackup"}, args...)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return cfg
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, testConfigTOML)

	cfg := runWithConfig(t, []string{"--config", path, "run"}, nil)

	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %s", cfg.LogLevel)
	}
	if cfg.Backup.Root != "/mnt/nas/vault" || cfg.Mount.Path != "/mnt/nas/vault" {
		t.Errorf("Backup.Root = %s, Mount.Path = %s", cfg.Backup.Root, cfg.Mount.Path)
	}
	if cfg.Mount.RetryCount != 5 || cfg.Mount.RetryDelay != 2*time.Second {
		t.Errorf("Mount = %+v", cfg.Mount)
	}
	if cfg.MountWait(app.VariantService) {
		t.Error("mount.wait = false ignored")
	}
	if cfg.Vault.ServerURL != "https://vault.example.com" {
		t.Errorf("ServerURL = %s", cfg.Vault.ServerURL)
	}
	if cfg.Credentials.Source != app.CredentialSourceKeyring || cfg.Credentials.KeyringUser != "ops" {
		t.Errorf("Credentials = %+v", cfg.Credentials)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, testConfigTOML)
	environ := []string{
		"VAULTBACKUP_BACKUP__ROOT=/srv/env-root",
		"VAULTBACKUP_MOUNT__RETRY_COUNT=7",
		"UNRELATED=1",
	}

	cfg := runWithConfig(t, []string{"--config", path, "run", "--mount--retry-count", "9", "--vault--cli-path", "/opt/bw/bw"}, environ)

	if cfg.Backup.Root != "/srv/env-root" {
		t.Errorf("env did not override file: Backup.Root = %s", cfg.Backup.Root)
	}
	if cfg.Mount.RetryCount != 9 {
		t.Errorf("flag did not override env: RetryCount = %d", cfg.Mount.RetryCount)
	}
	if cfg.Mount.RetryDelay != 2*time.Second {
		t.Errorf("unset flag overrode file: RetryDelay = %s", cfg.Mount.RetryDelay)
	}
	if cfg.Vault.CLIPath != "/opt/bw/bw" {
		t.Errorf("CLIPath = %s", cfg.Vault.CLIPath)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := runWithConfig(t, []string{"run", "--mount--wait"}, nil)

	if cfg.Vault.CLIPath != app.DefaultConfigVaultCLIPath {
		t.Errorf("CLIPath = %s", cfg.Vault.CLIPath)
	}
	if cfg.Mount.RetryCount != app.DefaultConfigMountRetryCount {
		t.Errorf("RetryCount = %d", cfg.Mount.RetryCount)
	}
	if !cfg.MountWait(app.VariantInteractive) {
		t.Error("--mount--wait ignored")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "[credentials]\nsource = \"clipboard\"\n")

	if _, err := loadConfig(path, nil, func() []string { return nil }); err == nil {
		t.Fatal("loadConfig() accepted unknown credential source")
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), nil, func() []string { return nil }); err == nil {
		t.Fatal("loadConfig() accepted missing config file")
	}
}

func TestLoadConfig_DefaultFile(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	path := filepath.Join(configHome, defaultConfigFile)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[backup]\nroot = \"/mnt/default\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig("", nil, func() []string { return nil })
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Backup.Root != "/mnt/default" {
		t.Errorf("Backup.Root = %s, want value from default config file", cfg.Backup.Root)
	}
}

func TestLoadConfig_TypedKeys(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		environ []string
		wantKey string
	}{
		{
			name:    "duration without unit",
			file:    "[mount]\nretry_delay = 30\n",
			wantKey: "mount.retry_delay",
		},
		{
			name:    "unparsable duration from env",
			environ: []string{"VAULTBACKUP_MOUNT__RETRY_DELAY=soon"},
			wantKey: "mount.retry_delay",
		},
		{
			name:    "invalid boolean from env",
			environ: []string{"VAULTBACKUP_MOUNT__WAIT=maybe"},
			wantKey: "mount.wait",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", t.TempDir())
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			_, err := loadConfig(path, nil, func() []string { return tt.environ })
			if err == nil {
				t.Fatal("loadConfig() returned nil error")
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("error %q does not name %s", err, tt.wantKey)
			}
		})
	}
}

func TestLoadConfig_WaitFromEnv(t *testing.T) {
	cfg := runWithConfig(t, []string{"run"}, []string{"VAULTBACKUP_MOUNT__WAIT=false", "VAULTBACKUP_MOUNT__RETRY_DELAY=45s"})

	if cfg.MountWait(app.VariantService) {
		t.Error("VAULTBACKUP_MOUNT__WAIT=false ignored")
	}
	if cfg.Mount.RetryDelay != 45*time.Second {
		t.Errorf("RetryDelay = %s", cfg.Mount.RetryDelay)
	}
}
