package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
}

var errNotRunning = errors.New("no running daemon")

// runningDaemon returns the serve process recorded in dataDir, or
// errNotRunning when the PID file is missing or the process is gone.
func runningDaemon(dataDir string) (*os.Process, error) {
	data, err := os.ReadFile(pidPath(dataDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNotRunning
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PID file %s: %w", pidPath(dataDir), err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	// Signal 0 probes for existence without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("%w (stale PID %d)", errNotRunning, pid)
	}
	return proc, nil
}

// signalDaemon delivers sig to the running serve process and returns its PID.
func signalDaemon(sig syscall.Signal) (int, error) {
	proc, err := runningDaemon(loadConfig().DataDir)
	if err != nil {
		return 0, err
	}
	if err := proc.Signal(sig); err != nil {
		return 0, fmt.Errorf("send %s to %d: %w", sig, proc.Pid, err)
	}
	return proc.Pid, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalDaemon(syscall.SIGTERM)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopping wayfarer (PID %d); in-flight turns get up to %s.\n", pid, shutdownGrace)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Re-exec the running daemon with fresh config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalDaemon(syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restarting wayfarer (PID %d).\n", pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		proc, err := runningDaemon(cfg.DataDir)
		if errors.Is(err, errNotRunning) {
			fmt.Fprintf(cmd.OutOrStdout(), "wayfarer is not running (%v)\n", err)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wayfarer is running\n  pid:  %d\n  http: %s\n  data: %s\n", proc.Pid, cfg.HTTP.Addr, cfg.DataDir)
		return nil
	},
}
