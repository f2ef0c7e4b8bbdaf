package superschedules

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/SuperSchedules/superschedules/config"
)

var (
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "superschedules",
		Short: "Superschedules: local event retrieval and ranking",
		Long: `Superschedules resolves natural-language questions about local activities
into a ranked, tiered set of upcoming events.

It serves the retrieval API, backfills event embeddings and resolves place
names from the command line.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// bootstrap loads .env and the config file and installs the default logger.
func bootstrap() (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing config: %w", err)
	}

	logger := setupLogger(cfg.Mode, logLevel)
	slog.SetDefault(logger)
	return &cfg, logger, nil
}

// setupLogger picks colored output for development and JSON otherwise.
// APP_ENV overrides the configured mode.
func setupLogger(mode, level string) *slog.Logger {
	if env := os.Getenv("APP_ENV"); env != "" {
		mode = env
	}

	if mode == "development" || mode == "" {
		lvl := parseLevel(level, slog.LevelDebug)
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level, slog.LevelInfo),
	}))
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	var lvl slog.Level
	if s == "" || lvl.UnmarshalText([]byte(strings.ToUpper(s))) != nil {
		return fallback
	}
	return lvl
}
