package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/realtime"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload and print lane counts whenever someone else changes the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("%w: --interval must be positive", models.ErrValidation)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			scope := v.Scope()
			v.Watch(func(ctx context.Context, fn func(realtime.Event)) error {
				return realtime.Listen(ctx, a.client.BaseURL(), a.client.Token(), scope.WorkspaceID, fn)
			})
			printCounts(cmd, v.Store().LaneView().Lane)

			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					if !v.Stale() {
						continue
					}
					if err := v.Reload(ctx); err != nil {
						a.log.Warn("reload failed", "error", err)
						continue
					}
					printCounts(cmd, v.Store().LaneView().Lane)
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "how often to check for remote changes")
	return cmd
}

func printCounts(cmd *cobra.Command, lane func(models.TaskStatus) []models.Task) {
	parts := make([]string, 0, len(models.Statuses))
	for _, s := range models.Statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", s, len(lane(s))))
	}
	fmt.Fprintf(out(cmd), "%s %s\n", time.Now().Format(time.TimeOnly), strings.Join(parts, " "))
}
