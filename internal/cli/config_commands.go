// Package cli provides configuration management commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rescale/rescale-foldernav/internal/api"
	"github.com/rescale/rescale-foldernav/internal/config"
	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/models"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rescale-foldernav configuration",
		Long: `Configuration management commands for rescale-foldernav.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the folder service connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for rescale-foldernav.

The configuration is saved to ~/.config/rescale/foldernav (or --config).

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := runConfigWizard(bufio.NewReader(cmd.InOrStdin()), out)
			if err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Test your configuration with: rescale-foldernav config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// runConfigWizard asks for the settings of one backend plus proxy and
// navigation tuning. Defaults come from config.NewConfig.
func runConfigWizard(reader *bufio.Reader, out io.Writer) (*config.Config, error) {
	cfg := config.NewConfig()

	fmt.Fprintln(out, "Folder Navigator Configuration Setup")
	fmt.Fprintln(out, "====================================")
	fmt.Fprintln(out)

	cfg.Backend = strings.ToLower(promptString(reader, out, "Backend (http, memory, s3, azure)", cfg.Backend))

	switch cfg.Backend {
	case config.BackendHTTP:
		cfg.APIBaseURL = promptString(reader, out, "API Base URL", cfg.APIBaseURL)
		cfg.APIKey = promptString(reader, out, "API Key (optional)", "")
	case config.BackendS3:
		for cfg.S3.Bucket == "" {
			cfg.S3.Bucket = promptString(reader, out, "Bucket (required)", "")
			if cfg.S3.Bucket == "" {
				fmt.Fprintln(out, "  Error: bucket is required")
				if _, err := reader.Peek(1); err != nil {
					return nil, config.ErrMissingBucket
				}
			}
		}
		cfg.S3.Region = promptString(reader, out, "Region", cfg.S3.Region)
		cfg.S3.Prefix = promptString(reader, out, "Key prefix (optional)", "")
		cfg.S3.Endpoint = promptString(reader, out, "Custom endpoint (optional)", "")
	case config.BackendAzure:
		cfg.Azure.Account = promptString(reader, out, "Storage account", "")
		cfg.Azure.Container = promptString(reader, out, "Container", "")
		cfg.Azure.Prefix = promptString(reader, out, "Blob prefix (optional)", "")
		cfg.Azure.AccountKey = promptString(reader, out, "Account key (leave empty to use a SAS URL)", "")
		if cfg.Azure.AccountKey == "" {
			cfg.Azure.SASURL = promptString(reader, out, "SAS URL", "")
		}
	case config.BackendMemory:
	default:
		return nil, config.ErrUnknownBackend
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Navigation Settings (press Enter for defaults)")
	fmt.Fprintln(out, "----------------------------------------------")
	cfg.Navigation.HistoryLimit = promptInt(reader, out, "History limit", cfg.Navigation.HistoryLimit)
	cfg.Navigation.FetchConcurrency = promptInt(reader, out, "Fetch concurrency", cfg.Navigation.FetchConcurrency)
	cfg.Navigation.FetchTimeoutSeconds = promptInt(reader, out, "Fetch timeout (seconds)", cfg.Navigation.FetchTimeoutSeconds)

	fmt.Fprintln(out)
	proxy := strings.ToLower(promptString(reader, out, "Configure proxy? [y/N]", "n"))
	if proxy == "y" || proxy == "yes" {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.ProxyMode = promptString(reader, out, "Proxy mode", "system")
		if cfg.ProxyMode != "no-proxy" {
			cfg.ProxyHost = promptString(reader, out, "Proxy host", "")
			cfg.ProxyPort = promptInt(reader, out, "Proxy port", 8080)
		}
		if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
			cfg.ProxyUser = promptString(reader, out, "Proxy user", "")
			cfg.ProxyPassword = readSecret(reader, out, "Proxy password (stored in the config file)")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readSecret reads without echo on a terminal and falls back to a plain
// line read otherwise.
func readSecret(reader *bufio.Reader, out io.Writer, label string) string {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(out, "%s: ", label)
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err == nil {
			return string(pw)
		}
	}
	return promptString(reader, out, label, "")
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/rescale/foldernav)
  2. Environment variables (RESCALE_FOLDERNAV_API_KEY, RESCALE_FOLDERNAV_API_URL)
  3. Command-line flags (--api-key, --api-url, --backend)

Priority: flags > environment > config file > defaults
Secrets are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg.Redacted())

			if path, err := configPath(); err == nil {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration file: %s\n", path)
				if _, err := os.Stat(path); os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "  (file does not exist - using defaults)")
				}
			}
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Service:")
	fmt.Fprintf(w, "  Backend:  %s\n", cfg.Backend)
	switch cfg.Backend {
	case config.BackendHTTP:
		fmt.Fprintf(w, "  API URL:  %s\n", cfg.APIBaseURL)
		fmt.Fprintf(w, "  API Key:  %s\n", orNotSet(cfg.APIKey))
		fmt.Fprintf(w, "  Timeout:  %s\n", cfg.Timeout())
	case config.BackendS3:
		fmt.Fprintf(w, "  Bucket:   %s\n", cfg.S3.Bucket)
		fmt.Fprintf(w, "  Region:   %s\n", cfg.S3.Region)
		fmt.Fprintf(w, "  Prefix:   %s\n", cfg.S3.Prefix)
		if cfg.S3.Endpoint != "" {
			fmt.Fprintf(w, "  Endpoint: %s\n", cfg.S3.Endpoint)
		}
		fmt.Fprintf(w, "  Secret:   %s\n", orNotSet(cfg.S3.SecretKey))
	case config.BackendAzure:
		fmt.Fprintf(w, "  Account:   %s\n", cfg.Azure.Account)
		fmt.Fprintf(w, "  Container: %s\n", cfg.Azure.Container)
		fmt.Fprintf(w, "  Prefix:    %s\n", cfg.Azure.Prefix)
		fmt.Fprintf(w, "  Key:       %s\n", orNotSet(cfg.Azure.AccountKey))
		fmt.Fprintf(w, "  SAS URL:   %s\n", orNotSet(cfg.Azure.SASURL))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Navigation:")
	fmt.Fprintf(w, "  History Limit:     %d\n", cfg.Navigation.HistoryLimit)
	fmt.Fprintf(w, "  Fetch Concurrency: %d\n", cfg.Navigation.FetchConcurrency)
	fmt.Fprintf(w, "  Fetch Timeout:     %s\n", cfg.FetchTimeout())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Logging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	if cfg.Logging.File != "" {
		fmt.Fprintf(w, "  File:  %s (%d MB x %d)\n", cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "  Listen:        %s\n", cfg.Server.Listen)
	fmt.Fprintf(w, "  API Key:       %s\n", orNotSet(cfg.Server.APIKey))
	fmt.Fprintf(w, "  Delete Policy: %s\n", cfg.Server.DeletePolicy)
	fmt.Fprintf(w, "  Seed:          %t\n", cfg.Server.Seed)
}

func orNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the folder service connection",
		Long: `Test the connection to the configured folder service by fetching the
root folder. For the http backend the server's health endpoint is
checked first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Fprintln(out, "Testing Folder Service Connection")
			fmt.Fprintln(out, "=================================")
			fmt.Fprintf(out, "Backend: %s\n", cfg.Backend)
			fmt.Fprintln(out)

			ctx, cancel := context.WithTimeout(GetContext(), constants.APIContextTimeout)
			defer cancel()

			svc, err := getFolderService(ctx, cfg)
			if err != nil {
				return err
			}

			if client, ok := svc.(*api.Client); ok {
				h, err := client.Health(ctx)
				if err != nil {
					logger.Error().Err(err).Msg("Health check failed")
					fmt.Fprintln(out, "✗ Health check FAILED")
					fmt.Fprintf(out, "  Error: %v\n", err)
					return fmt.Errorf("connection test failed")
				}
				fmt.Fprintf(out, "✓ Server at %s is %s", client.BaseURL(), h.Status)
				if h.Version != "" {
					fmt.Fprintf(out, " (version %s)", h.Version)
				}
				fmt.Fprintln(out)
			}

			start := time.Now()
			root, err := svc.FetchNode(ctx, models.RootID)
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			logger.Info().Dur("elapsed", time.Since(start)).Msg("Connection test successful")
			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			fmt.Fprintf(out, "  Root folder: %s (%d entries, %s)\n",
				root.Name, len(root.Children), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n", path)
			fmt.Fprintln(out)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: rescale-foldernav config init")
			}
			fmt.Fprintf(out, "Logs:   %s\n", config.LogDirectory())
			return nil
		},
	}
}
