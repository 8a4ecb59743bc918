// Package main is the prayer-push binary: the Web Push delivery service of
// the youth app, its database migrations and its reminder invoker.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "prayer-push"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Web Push delivery for the youth app",
		Long: `prayer-push stores browser push subscriptions, writes in-app
notifications and delivers them as encrypted Web Push messages.

Prayer reminders are swept once a minute by calling the reminder endpoint;
the cron command is a ready-made caller for it.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), vapidCmd(), cronCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}
