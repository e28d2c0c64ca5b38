package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/wayfarer/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "wayfarer",
	Short:         "AI travel assistant: chat orchestration over travel tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
	rootCmd.Version = version
}

// loadConfig reads .env and the config file. Failing to load config is fatal
// for every command.
func loadConfig() *config.Config {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the default logger. The returned func closes the
// log file, if any.
func setupLogging(cfg *config.Config) func() error {
	logger, closeFn := config.SetupLogger(cfg.LogFile, config.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	return closeFn
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
