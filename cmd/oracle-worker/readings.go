// cmd/oracle-worker/readings.go
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oracle-worker/internal/common/database"
	queryelasticsearch "oracle-worker/internal/workers/data-access/query-elasticsearch"
	querypostgresql "oracle-worker/internal/workers/data-access/query-postgresql"

	"github.com/spf13/cobra"
)

func newReadingsCommand() *cobra.Command {
	var (
		userID string
		cardID int
		size   int
	)

	cmd := &cobra.Command{
		Use:   "readings",
		Short: "List a user's archived readings that drew a card",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user must be non-empty")
			}
			if cardID < 0 || cardID > 77 {
				return fmt.Errorf("--card must be between 0 and 77, got %d", cardID)
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.Database.Elasticsearch.Enabled {
				return errors.New("reading archive is disabled (database.elasticsearch.enabled)")
			}
			zapLog, log := newLogger(cfg)
			defer zapLog.Sync()

			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			handler := queryelasticsearch.NewHandler(queryelasticsearch.ConfigFrom(cfg.Database.Elasticsearch), es.Client, log)
			out, err := handler.ReadingsWithCard(ctx, &queryelasticsearch.SearchInput{
				UserIDHash: querypostgresql.HashUserID(cfg.App.UserHashSalt, userID),
				CardID:     cardID,
				Size:       size,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d reading(s) with card %d\n", out.TotalHits, cardID)
			for _, r := range out.Readings {
				names := make([]string, 0, len(r.Cards))
				for _, c := range r.Cards {
					if c.Inverted {
						names = append(names, c.Name+" (reversed)")
						continue
					}
					names = append(names, c.Name)
				}
				fmt.Fprintf(w, "%s  %-14s  %s\n", r.CreatedAt.Format(time.RFC3339), r.Kind, strings.Join(names, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().IntVar(&cardID, "card", 0, "card id (0-77)")
	cmd.Flags().IntVar(&size, "size", 20, "maximum readings to return")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("card")
	return cmd
}
