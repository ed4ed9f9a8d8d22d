package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	envFiles    []string
	fakeEntries string
}

func newRootCmd() *cobra.Command {
	var g globalOptions

	cmd := &cobra.Command{
		Use:           "gamesync",
		Short:         "Sync game metadata spreadsheets into the content repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", []string{".env", ".env.local"}, "Env files to load before reading configuration")
	cmd.PersistentFlags().StringVar(&g.fakeEntries, "fake-entries", "", "Run against an in-memory repository seeded from this entries JSON file")

	cmd.AddCommand(newSyncCmd(&g))
	cmd.AddCommand(newPreviewCmd(&g))
	cmd.AddCommand(newValidateSheetCmd(&g))
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
