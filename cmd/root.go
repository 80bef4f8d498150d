// Package cmd provides the cvforge command-line interface.
//
// Configuration is merged from three sources, highest priority first:
//
//  1. Command-line flags (--port, --log-level, ...)
//  2. Environment variables with the CVFORGE_ prefix
//     (CVFORGE_SERVER_PORT, CVFORGE_RENDER_TIMEOUT, ...)
//  3. A .cvforge.yml file in the current directory, or the file named by
//     --config or CVFORGE_CONFIG_FILE
//
// A .env file in the current directory is loaded before anything else so
// GEMINI_API_KEY and friends can live next to the project.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cvforge/internal/config"
	"cvforge/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cvforge",
	Short: "Tailor and live-render CVs against job advertisements",
	Long: `cvforge tailors a master CV to a specific job advertisement with an LLM
workflow and renders the result to PDF through an external render engine,
with a browser editor that re-renders as you type.

Quick start:
  cvforge serve                 Start the editor and preview server
  cvforge tailor                Tailor the master CV to the saved job ad
  cvforge render                Render the working CV once
  cvforge cleanup               Delete old render directories`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .cvforge.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	// Silently skipped when absent.
	godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envFile := os.Getenv("CVFORGE_CONFIG_FILE"); envFile != "" {
		viper.SetConfigFile(envFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cvforge")
	}

	viper.SetEnvPrefix("CVFORGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the resolved config.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
