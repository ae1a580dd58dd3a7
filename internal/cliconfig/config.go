// Package cliconfig loads cmd/coverfs's layered configuration (env >
// config file > defaults) with spf13/viper, the pattern
// _examples/deploymenttheory-go-apfs/internal/device/dmg.go uses for its
// own DMGConfig.
package cliconfig

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds settings that every coverfs subcommand may read, layered
// from (highest to lowest precedence) COVERFS_* environment variables, a
// coverfs.yaml config file, and these defaults. No command flags are bound
// here; subcommands combine their own flags with the loaded values.
type Config struct {
	BlockSize  uint32 `mapstructure:"block_size"`
	CryptCache bool   `mapstructure:"crypt_cache"`
	KDFIters   uint32 `mapstructure:"kdf_iterations"`
}

// Load reads coverfs.yaml from the working directory, $HOME/.coverfs, or
// /etc/coverfs if present, falling back to defaults when none exists.
func Load() (*Config, error) {
	viper.SetConfigName("coverfs")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.coverfs")
	viper.AddConfigPath("/etc/coverfs")

	viper.SetDefault("block_size", 4096)
	viper.SetDefault("crypt_cache", false)
	viper.SetDefault("kdf_iterations", 1000)

	viper.SetEnvPrefix("COVERFS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
