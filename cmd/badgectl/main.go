// Package main is the entry point for the badgectl CLI.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eventbadges/badge-engine/internal/config"
)

var (
	debug  bool
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "badgectl",
	Short: "OpenBadges 3.0 credential engine CLI",
	Long: `Issue, sign and verify OpenBadges 3.0 AchievementCredentials.

Key material and issuer settings are read from the environment
(BADGE_PRIVATE_KEY, BADGE_PUBLIC_KEY, BADGE_ISSUER_DOMAINS, BADGE_ISSUER_NAME)
and from .env / .env.local files in the working directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		l, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
		return nil
	},
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// resolveIssuerURL prefers an explicit flag over the configured domains.
func resolveIssuerURL(cfg config.Config, override string) (string, error) {
	if override != "" {
		return strings.TrimRight(override, "/"), nil
	}
	return cfg.IssuerURL()
}

// readInput returns the named file, or stdin when name is empty or "-".
func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")
}

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
