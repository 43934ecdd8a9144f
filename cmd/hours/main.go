// Package main is the hours CLI: it turns calendar meetings into time entries.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Veraticus/the-hours-must-flow/internal/cli"
	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "hours",
		Short: "⏱️  Meeting-to-timesheet engine",
		Long: `the-hours-must-flow: reads your calendar, works out which task each meeting
belongs to, and logs the time for you. Meetings it is unsure about wait in a
review queue until you decide.

The hours must flow!`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/hours/config.yaml or ~/.config/hours/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("user", "", "email of the user to act for (overrides user.email)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("user.email", rootCmd.PersistentFlags().Lookup("user"))

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		os.Exit(1)
	}
}

// configDir is where config.yaml is looked up when --config is not given.
func configDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "hours"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "hours"), nil
}

func initConfig(_ *cobra.Command, _ []string) error {
	// A missing .env is normal.
	envLoaded := godotenv.Load() == nil

	if cfgFile != "" {
		viper.SetConfigFile(config.ExpandPath(cfgFile))
	} else {
		dir, err := configDir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(dir)
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("HOURS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := setupLogging(); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.Debug("Configuration loaded",
		"config_file", viper.ConfigFileUsed(),
		"dotenv", envLoaded)
	return nil
}

func setupLogging() error {
	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}
	return common.SetupLogger(level, viper.GetString("logging.format"))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			slog.Info("hours version", "version", version)
		},
	}
}
