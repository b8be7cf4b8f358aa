// Package cli implements the editdesk command line: resolving host pages,
// watching frame windows and applying migrations.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"editdesk/api/internal/config"
	"editdesk/api/internal/handshake"
	"editdesk/api/internal/logging"
)

var (
	configPath string
	redisURL   string
	cfg        config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "editdesk",
	Short:         "Client feedback desk tooling",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logging.Setup(cfg.LogLevel, cfg.IsDevelopment())
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("EDITDESK_CONFIG"), "TOML config file")
	RootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis URL for cross-window messages (default: $EDITDESK_REDIS_URL)")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// exitError ends the process with code after its message was printed.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func busURL() string {
	if strings.TrimSpace(redisURL) != "" {
		return redisURL
	}
	return cfg.RedisURL
}

// openBus returns a Redis bus when a URL is configured. The in-memory bus only
// reaches windows inside this process.
func openBus() (handshake.Bus, error) {
	if url := busURL(); strings.TrimSpace(url) != "" {
		bus, err := handshake.NewRedisBus(url)
		if err != nil {
			return nil, err
		}
		return bus, nil
	}
	return handshake.NewMemoryBus(), nil
}
