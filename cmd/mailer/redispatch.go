package main

import (
	"context"
	"fmt"

	"github.com/Priya8975/campaign-mailer/internal/config"
	"github.com/spf13/cobra"
)

var redispatchCmd = &cobra.Command{
	Use:   "redispatch <campaign-id>",
	Short: "Re-run the enqueue step for a campaign stuck in SENDING",
	Long: `Queues a job for every recipient of a SENDING campaign that has not been
sent and has no job waiting. Recipients already sent or queued are left alone,
so it is safe to run any number of times.`,
	Args: cobra.ExactArgs(1),
	RunE: runRedispatch,
}

func runRedispatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	done := make(chan struct{})
	go func() {
		a.reconciler.Run(ctx)
		close(done)
	}()

	res, err := a.dispatcher.Enqueue(ctx, args[0])
	cancel()
	<-done
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "campaign %s: %d unsent, %d queued, %d already queued, %d suppressed\n",
		res.CampaignID, res.Unsent, res.Enqueued, res.AlreadyQueued, res.Suppressed)
	return nil
}
