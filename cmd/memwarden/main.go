package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genc-murat/memwarden/internal/config"
)

const overridesEnv = "MEMWARDEN_OVERRIDES"

var (
	flagEnv        string
	flagConfigPath string
	flagOverrides  []string
)

var rootCmd = &cobra.Command{
	Use:           "memwarden",
	Short:         "Adaptive memory-pressure and GC control",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagEnv, "env", "e", "development", "environment; loads config/<env>.yaml")
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "", "explicit config file (overrides --env lookup)")
	rootCmd.PersistentFlags().StringArrayVar(&flagOverrides, "set", nil, `JSON override document, e.g. '{"strategy":{"active":"aggressive"}}'`)

	rootCmd.AddCommand(runCmd, checkConfigCmd, statusCmd)
}

// loadConfig resolves the config file, then applies MEMWARDEN_OVERRIDES and
// every --set document in order.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfigPath != "" {
		cfg, err = config.Load(flagConfigPath)
	} else {
		cfg, err = config.LoadConfig(flagEnv)
	}
	if err != nil {
		return nil, err
	}

	docs := flagOverrides
	if env := os.Getenv(overridesEnv); env != "" {
		docs = append([]string{env}, docs...)
	}
	for _, doc := range docs {
		if err := config.ApplyOverrides(cfg, doc); err != nil {
			return nil, fmt.Errorf("applying override %s: %w", doc, err)
		}
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
