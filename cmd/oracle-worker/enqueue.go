// cmd/oracle-worker/enqueue.go
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oracle-worker/internal/common/database"
	"oracle-worker/internal/common/queue"
	"oracle-worker/internal/models"

	"github.com/spf13/cobra"
)

func newEnqueueCommand() *cobra.Command {
	var userID, message string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Push one chat turn onto the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			job := &models.Job{UserID: userID, Message: message}
			if !job.Valid() {
				return errors.New("--user and --message must be non-empty")
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			zapLog, log := newLogger(cfg)
			defer zapLog.Sync()

			rc, err := database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			defer rc.Close()

			q, err := queue.NewRedisQueue(rc.Client, queue.ConfigFrom(cfg.Queue), log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := q.Enqueue(ctx, job); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "enqueued job for %s on %s\n", userID, cfg.Queue.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&message, "message", "", "chat message")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
