package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"arc-go/internal/app"
	"arc-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runApp reads the config, builds an App for one command and runs fn with it.
// command names the operation in the log. archive and mutating decide whether
// a snapshot-on-change follows a successful run.
func runApp(cmd *cobra.Command, command, archive string, mutating bool, fn func(ctx context.Context, a *app.App) error) error {
	defaults, err := app.GetDefaults()
	if err != nil {
		return fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := app.LoadConfig(defaults)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	ctx := cmd.Context()
	a, err := app.NewApp(ctx, cfg, app.NewOperation(command, archive, mutating, time.Now()))
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}

	return a.Finish(ctx, fn(ctx, a))
}

// archiveFlag returns the archive named by --archive or $ARC_ARCHIVE.
func archiveFlag(cmd *cobra.Command) (string, error) {
	name, _ := cmd.Flags().GetString("archive")
	if name == "" {
		name = os.Getenv("ARC_ARCHIVE")
	}
	if name == "" {
		return "", fmt.Errorf("no archive selected: pass --archive or set ARC_ARCHIVE")
	}
	return name, nil
}

// archivistFlag returns the acting archivist named by --as or $ARC_ARCHIVIST.
func archivistFlag(cmd *cobra.Command) (string, error) {
	name, _ := cmd.Flags().GetString("as")
	if name == "" {
		name = os.Getenv("ARC_ARCHIVIST")
	}
	if name == "" {
		return "", fmt.Errorf("no archivist selected: pass --as or set ARC_ARCHIVIST")
	}
	return name, nil
}

// scope resolves both the archive and the acting archivist.
func scope(cmd *cobra.Command) (archive, archivist string, err error) {
	if archive, err = archiveFlag(cmd); err != nil {
		return "", "", err
	}
	if archivist, err = archivistFlag(cmd); err != nil {
		return "", "", err
	}
	return archive, archivist, nil
}

var rootCmd = &cobra.Command{
	Use:          "arc",
	Short:        "Content-addressed document archive",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Fprintf(cmd.OutOrStdout(), "Archives: %s\n", cfg.RootDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := app.LoadConfig(defaults)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		if outputFormat(cmd) != "text" {
			return emit(cmd, cfg, nil)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", defaults.ConfigPath)
		m := &config.Manager{}
		return m.Write(cmd.OutOrStdout(), cfg)
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Check the snapshot vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, "ValidateVault", "", false, func(ctx context.Context, a *app.App) error {
			if err := a.ValidateVault(ctx); err != nil {
				return fmt.Errorf("vault check failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Vault %s is reachable\n", a.Config().Vaults[0].Name)
			return nil
		})
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readNewPassphrase(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "SetupKeys", "", false, func(ctx context.Context, a *app.App) error {
			if err := a.SetupKeys(passphrase); err != nil {
				return fmt.Errorf("generating keys: %w", err)
			}
			enc := a.Config().Encryption
			fmt.Fprintf(cmd.OutOrStdout(), "Public key:  %s\nPrivate key: %s\n", enc.PublicKeyPath, enc.PrivateKeyPath)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("archive", "a", "", "Archive to operate on (default $ARC_ARCHIVE)")
	rootCmd.PersistentFlags().String("as", "", "Acting archivist (default $ARC_ARCHIVIST)")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "Output format: text, yaml or json")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	rootCmd.AddCommand(configCmd)

	keysCmd.AddCommand(keysInitCmd)
	rootCmd.AddCommand(keysCmd)
}
