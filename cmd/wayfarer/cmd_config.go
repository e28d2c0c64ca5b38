package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/user/wayfarer/internal/config"
)

var showSecrets bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configPathCmd, configKeysCmd)
	configListCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print credentials in full")
	configGetCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print credentials in full")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit ~/.wayfarer/config.json",
}

// writeValues prints "key = value" lines in key order. Only keys under
// prefix are printed when prefix is non-empty.
func writeValues(w io.Writer, values map[string]any, prefix string) int {
	keys := lo.Filter(config.SortedKeys(values), func(k string, _ int) bool {
		return prefix == "" || k == prefix || strings.HasPrefix(k, prefix+".")
	})
	for _, k := range keys {
		fmt.Fprintf(w, "%s = %v\n", k, values[k])
	}
	return len(keys)
}

var configListCmd = &cobra.Command{
	Use:   "list [section]",
	Short: "List effective values, environment overrides included",
	Example: `  wayfarer config list
  wayfarer config list llm`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.ListValues(loadConfig(), !showSecrets)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		if writeValues(cmd.OutOrStdout(), values, prefix) == 0 && prefix != "" {
			return fmt.Errorf("no config keys under %q", prefix)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		val, err := config.GetValue(cfgPath, key)
		if err != nil {
			return err
		}
		if !showSecrets {
			val = config.MaskSecrets(map[string]any{key: val})[key]
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a value in the config file",
	Example: `  wayfarer config set llm.provider anthropic
  wayfarer config set tools.cache_ttl_seconds 900`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, raw := args[0], args[1]
		if err := config.SetValue(cfgPath, key, raw); err != nil {
			return err
		}
		if config.IsSecretKey(key) {
			raw = "***"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, raw)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every settable key",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.KnownKeys() {
			marker := ""
			if config.IsSecretKey(k) {
				marker = " (secret)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", k, marker)
		}
	},
}
