// cmd/oracle-worker/migrate.go
package main

import (
	"fmt"

	"oracle-worker/internal/common/database"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			zapLog, _ := newLogger(cfg)
			defer zapLog.Sync()

			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := database.Migrate(pg.DB, args[0]); err != nil {
				return err
			}
			zapLog.Info("migrations finished")
			return nil
		},
	}
	return cmd
}
