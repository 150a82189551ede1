package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackdesk/triage/internal/ai"
)

var (
	workerWatch    bool
	workerInterval time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process pending AI summarization jobs",
	Long: `Process pending AI summarization jobs.

By default the worker drains the pending queue once and exits. With
--watch it keeps polling at the configured interval until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		log := newLogger()
		pipeline := ai.NewPipeline(s, getGenerator(), log)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		processed, err := pipeline.ProcessPending(ctx)
		if err != nil {
			return err
		}
		ui.Info("Processed %d job(s)", processed)

		if !workerWatch {
			return nil
		}

		ticker := time.NewTicker(workerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				ui.Info("Worker stopped")
				return nil
			case <-ticker.C:
				n, err := pipeline.ProcessPending(ctx)
				if err != nil {
					log.Error("process pending jobs", "error", err)
					continue
				}
				if n > 0 {
					ui.Info("Processed %d job(s)", n)
				}
			}
		}
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerWatch, "watch", false, "Keep polling for new jobs")
	workerCmd.Flags().DurationVar(&workerInterval, "interval", 10*time.Second, "Poll interval with --watch")
	rootCmd.AddCommand(workerCmd)
}
