package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prayer-push-go/internal/config"
	"prayer-push-go/internal/invoker"
	"prayer-push-go/internal/logger"
)

func cronCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Call the reminder sweep endpoint on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.New(cfg.LogLevel)
			if cfg.Backend.ServiceRoleKey == "" {
				return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
			}

			inv := invoker.New(cfg.Reminder.TriggerURL, cfg.Backend.ServiceRoleKey, nil, log)

			if once {
				result, err := inv.Trigger(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "time=%s sent=%d pushSent=%d skipped=%d\n",
					result.Time, result.Sent, result.PushSent, result.Skipped)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return inv.Run(ctx, cfg.Reminder.CronSchedule)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Trigger a single sweep and exit")
	return cmd
}
