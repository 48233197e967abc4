// Package main implements the authflow demo CLI.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/CliForge/authflow/pkg/config"
	"github.com/CliForge/authflow/pkg/scheme"
	"github.com/CliForge/authflow/pkg/storage"
)

const appName = "authflow"

var (
	// Version is set at build time
	version = "0.3.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authflow",
		Short: "Authflow - Keep an OAuth2 token pair fresh across CLI calls",
		Long: `Authflow manages an OAuth2-style access/refresh token pair for
command-line API clients.

It stores credentials in a configurable backend (file, OS keyring,
redis or memory), refreshes the access token transparently before or
upon expiry, and falls back to a clean logged-out state when the
refresh token is no longer usable.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to the config file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCallCmd())

	return cmd
}

// buildScheme loads configuration and assembles the scheme with its
// storage backend.
func buildScheme(cmd *cobra.Command) (*scheme.RefreshScheme, error) {
	loader := config.NewLoader(appName)
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger := logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		cfg.Scheme.Logger = logger
	}

	store, err := storage.NewFactory().Create(&cfg.Storage, appName)
	if err != nil {
		return nil, err
	}

	return scheme.New(&cfg.Scheme, store, nil)
}
