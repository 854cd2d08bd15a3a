package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/kafka"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a queue consumer",
}

var workerSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Consume the sync topic and store entity versions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorker(cmd, (*app).syncConsumer)
	},
}

var workerMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Consume the match topic and link matching entities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorker(cmd, (*app).matchConsumer)
	},
}

func runWorker(cmd *cobra.Command, consumer func(*app) *kafka.Consumer) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return consume(ctx, consumer(a))
}
