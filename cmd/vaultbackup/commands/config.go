package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/vaultbackup/internal/app"
)

// envPrefix is stripped from environment variables during config loading (e.g., VAULTBACKUP_MOUNT__RETRY_COUNT → mount.retry_count)
const envPrefix = "VAULTBACKUP_"

// defaultConfigFile is read from the user config directory when --config is not given.
const defaultConfigFile = "vaultbackup/config.toml"

// Keys decoded from strings. They are checked before decoding so errors name the
// key, and so a bare TOML number is not taken as nanoseconds.
var (
	durationKeys = []string{"mount.retry_delay"}
	boolKeys     = []string{"mount.wait"}
)

// loadConfig merges the config file, VAULTBACKUP_* environment variables and
// explicitly set flags, in increasing precedence, then fills defaults and validates.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if err := loadConfigFile(k, configPath); err != nil {
		return nil, err
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagValues(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	if err := checkTypedKeys(k); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// loadConfigFile loads an explicit config file, which must exist, or the default
// one from the user config directory if present.
func loadConfigFile(k *koanf.Koanf, configPath string) error {
	if configPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		configPath = filepath.Join(dir, defaultConfigFile)
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}

	if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
		return fmt.Errorf("loading config file %s: %w", configPath, err)
	}
	return nil
}

// envKey maps VAULTBACKUP_MOUNT__RETRY_DELAY to mount.retry_delay.
func envKey(key, value string) (string, any) {
	stripped := strings.TrimPrefix(key, envPrefix)
	return strings.ToLower(strings.ReplaceAll(stripped, "__", ".")), value
}

func checkTypedKeys(k *koanf.Koanf) error {
	var errs []error

	for _, key := range durationKeys {
		if !k.Exists(key) {
			continue
		}
		switch v := k.Get(key).(type) {
		case time.Duration:
		case string:
			if _, err := time.ParseDuration(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: want a duration such as \"30s\", got %v", key, v))
		}
	}

	for _, key := range boolKeys {
		if !k.Exists(key) {
			continue
		}
		switch v := k.Get(key).(type) {
		case bool:
		case string:
			if _, err := strconv.ParseBool(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: want true or false, got %q", key, v))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: want true or false, got %v", key, v))
		}
	}

	return errors.Join(errs...)
}

// flagValues returns explicitly set flags keyed like the config file, including
// flags of parent commands. Examples: --mount--retry-count → mount.retry_count,
// --log-level → log_level.
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	for _, name := range cmd.FlagNames() {
		// Unset flags would shadow the file and environment with their defaults.
		if name == "config" || name == "c" || !cmd.IsSet(name) {
			continue
		}
		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			values[strings.ReplaceAll(key, "-", "_")] = value
		}
	}

	return values
}
