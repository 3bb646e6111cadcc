// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the divelog-convert CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vchene/divelog-convert/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the divelog-convert CLI.
var rootCmd = &cobra.Command{
	Use:   "divelog-convert",
	Short: "Convert dive logbooks between interchange formats",
	Long: `divelog-convert reads dive logbook exports (DL7 .zxu, diviac CSV, UDDF,
zip bundles of these) into a canonical dive model and writes them back out
in any supported format.

Diver identity, unit conventions, and dive-computer defaults come from an
optional divelog-convert.yaml config file or DIVELOG_CONVERT_* environment
variables.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./divelog-convert.yaml or ~/.config/divelog-convert/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("divelog-convert")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "divelog-convert"))
		}
	}

	viper.SetEnvPrefix("DIVELOG_CONVERT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig materializes the effective configuration: defaults overlaid
// with whatever the config file and environment supply.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
