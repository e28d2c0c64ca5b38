package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/wayfarer/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Wayfarer Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.Provider = prompt(scanner, "LLM provider (openai, anthropic, ollama)", cfg.LLM.Provider)
		cfg.LLM.BaseURL = prompt(scanner, "LLM base URL", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = prompt(scanner, "LLM API key", cfg.LLM.APIKey)
		cfg.LLM.Model = prompt(scanner, "LLM model name", cfg.LLM.Model)
		cfg.LLM.FastModel = prompt(scanner, "Fast model for video enrichment", cfg.LLM.FastModel)

		maxTokensStr := prompt(scanner, "Max output tokens", strconv.Itoa(cfg.LLM.MaxTokens))
		if n, err := strconv.Atoi(maxTokensStr); err == nil {
			cfg.LLM.MaxTokens = n
		}

		fmt.Println()
		fmt.Println("Travel tools are enabled only when their keys are set. Leave blank to skip.")
		cfg.GooglePlaces.APIKey = prompt(scanner, "Google Places API key", cfg.GooglePlaces.APIKey)
		cfg.Amadeus.ClientID = prompt(scanner, "Amadeus client ID", cfg.Amadeus.ClientID)
		cfg.Amadeus.ClientSecret = prompt(scanner, "Amadeus client secret", cfg.Amadeus.ClientSecret)
		cfg.Ticketmaster.APIKey = prompt(scanner, "Ticketmaster API key", cfg.Ticketmaster.APIKey)
		cfg.Reddit.ClientID = prompt(scanner, "Reddit client ID", cfg.Reddit.ClientID)
		cfg.Reddit.ClientSecret = prompt(scanner, "Reddit client secret", cfg.Reddit.ClientSecret)
		cfg.Brave.APIKey = prompt(scanner, "Brave Search API key", cfg.Brave.APIKey)
		cfg.YouTube.APIKey = prompt(scanner, "YouTube Data API key", cfg.YouTube.APIKey)

		fmt.Println()
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		cfg.HTTP.Addr = prompt(scanner, "HTTP listen address", cfg.HTTP.Addr)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
