// Command importctl runs imports and inspects the processor configuration
// from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/shopimport/internal/config"
	"github.com/JonMunkholm/shopimport/internal/logging"
)

// cli carries the state shared by all subcommands.
type cli struct {
	lookup     config.LookupFunc
	configFile string
	logLevel   string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd(lookup config.LookupFunc) *cobra.Command {
	c := &cli{lookup: lookup}

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Import CSV and XML data into shop items",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(c.lookup)
			if err != nil {
				return err
			}
			if c.configFile != "" {
				cfg.Import.ConfigFile = c.configFile
			}
			if c.logLevel != "" {
				cfg.Logging.Level = c.logLevel
			}
			c.cfg = cfg
			c.logger = logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			slog.SetDefault(c.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&c.configFile, "config", "", "Processor configuration file (default: $IMPORT_CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOG_LEVEL)")

	cmd.AddCommand(
		newRunCmd(c),
		newChainsCmd(c),
		newProcessorsCmd(),
		newResetCmd(c),
	)
	return cmd
}

// loadDotEnv reads .env files without overwriting existing variables.
// Missing files are not an error.
func loadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func main() {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.LookupEnv).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
