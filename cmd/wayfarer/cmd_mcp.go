package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/wayfarer/internal/mcp"
	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/runtime/tools"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the travel tools over MCP on stdio",
	Long:  "Serve every configured travel tool over the Model Context Protocol. Stdout carries the protocol; logs go to stderr and the log file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		closeLog := setupLogging(cfg)
		defer closeLog()

		registry := runtime.NewRegistry()
		tools.FromConfig(cfg).Register(registry)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return mcp.ServeStdio(ctx, mcp.NewServer(registry, version), os.Stdin, os.Stdout)
	},
}
