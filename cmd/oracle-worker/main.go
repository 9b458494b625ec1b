// cmd/oracle-worker/main.go
package main

import (
	"fmt"
	"os"

	"oracle-worker/internal/common/config"
	"oracle-worker/internal/common/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "oracle-worker",
		Short:         "Tarot oracle job worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (default: configs/config.yaml)")

	root.AddCommand(newRunCommand(), newMigrateCommand(), newEnqueueCommand(), newReadingsCommand())
	return root
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// newLogger builds the zap logger and its wrapper from the logging section.
func newLogger(cfg *config.Config) (*zap.Logger, logger.Logger) {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	return zapLog, logger.NewZapAdapter(zapLog)
}
