package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the operational settings a host application reads at
// startup. It deliberately carries nothing about Argon2id: KDF parameters
// live inside the Keychain record itself (see keychain.go), not in a
// config file an administrator could weaken.
type Config struct {
	DataDir            string
	DefaultChunkSize    uint32
	DefaultCompression  CompressionMode
	ShredTarget         ShredTargetClass
	PanicHotkeyEnabled  bool
}

// defaultConfig mirrors the constants used elsewhere when no config file
// is present, so a bare install behaves the same as an explicit one.
func defaultConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		DefaultChunkSize:   DefaultChunkSize,
		DefaultCompression: CompressionAuto,
		ShredTarget:        ShredTargetDesktop,
		PanicHotkeyEnabled: true,
	}
}

// LoadConfig reads operational settings from configPath (if it exists)
// layered over environment variables prefixed QREVAULT_, falling back to
// defaultConfig(dataDir) for anything unset.
func LoadConfig(configPath, dataDir string) (Config, error) {
	cfg := defaultConfig(dataDir)

	v := viper.New()
	v.SetEnvPrefix("QREVAULT")
	v.AutomaticEnv()

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("default_chunk_size", cfg.DefaultChunkSize)
	v.SetDefault("default_compression", "auto")
	v.SetDefault("shred_target", "desktop")
	v.SetDefault("panic_hotkey_enabled", cfg.PanicHotkeyEnabled)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return Config{}, NewError(ErrIOFailure, "config.load", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dataDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, NewError(ErrIOFailure, "config.load", err)
			}
		}
	}

	cfg.DataDir = v.GetString("data_dir")
	cfg.DefaultChunkSize = v.GetUint32("default_chunk_size")
	cfg.PanicHotkeyEnabled = v.GetBool("panic_hotkey_enabled")

	mode, err := parseCompressionMode(v.GetString("default_compression"))
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultCompression = mode

	target, err := parseShredTarget(v.GetString("shred_target"))
	if err != nil {
		return Config{}, err
	}
	cfg.ShredTarget = target

	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	cfg.DataDir = filepath.Clean(cfg.DataDir)

	return cfg, nil
}

func parseCompressionMode(s string) (CompressionMode, error) {
	switch s {
	case "", "auto":
		return CompressionAuto, nil
	case "store":
		return CompressionStore, nil
	case "extreme":
		return CompressionExtreme, nil
	default:
		return 0, NewError(ErrIOFailure, "config.load", fmt.Errorf("unknown default_compression %q", s))
	}
}

func parseShredTarget(s string) (ShredTargetClass, error) {
	switch s {
	case "", "desktop":
		return ShredTargetDesktop, nil
	case "flash":
		return ShredTargetFlash, nil
	default:
		return 0, NewError(ErrIOFailure, "config.load", fmt.Errorf("unknown shred_target %q", s))
	}
}
