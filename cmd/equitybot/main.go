// Command equitybot is the entry point of the equity trading bot. It loads
// and validates the configuration, wires dependencies and either runs the
// configured mode until SIGINT/SIGTERM or ranks one session universe.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/equitybot/internal/app"
	"github.com/alanyoungcy/equitybot/internal/config"
	"github.com/alanyoungcy/equitybot/internal/crypto"
)

var (
	version    = "dev"
	configPath string
	modeFlag   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "equitybot",
		Short:         "VWAP crossover equity trading bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to configuration file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(sealSecretCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot in the configured mode (trade, signal or server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			logger.Info("equity bot starting",
				slog.String("mode", cfg.Mode),
				slog.String("config", configPath),
				slog.String("version", version),
			)

			application := app.New(cfg, logger)
			defer application.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("application exited with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("equity bot stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "override the configured mode")
	return cmd
}

func rankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank",
		Short: "Rank today's universe once and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			application := app.New(cfg, logger)
			defer application.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			u, err := application.Rank(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(u)
		},
	}
}

func sealSecretCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "seal-secret",
		Short: "Encrypt the broker API secret read from stdin for broker.api_secret_file",
		Long: `seal-secret reads the broker API secret from the first line of stdin and
writes it encrypted with the password in EQUITYBOT_BROKER_API_SECRET_PASSWORD.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("EQUITYBOT_BROKER_API_SECRET_PASSWORD")
			if password == "" {
				return errors.New("EQUITYBOT_BROKER_API_SECRET_PASSWORD is not set")
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read secret: %w", err)
			}
			sealed, err := crypto.Seal(strings.TrimSpace(line), password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, sealed, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sealed secret written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "broker_secret.json", "output file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "equitybot %s\n", version)
		},
	}
}

// setup loads and validates the configuration and installs the JSON logger
// at the configured level. Logs go to stderr so `rank` output stays clean.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))
	return cfg, logger, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
