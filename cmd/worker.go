package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/customer-intel/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume stage queues until interrupted",
	Long:  "Starts one consumer per configured stage topic against the SQS transport. Redelivery and dead-lettering are the queues' concern.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		transport, err := queue.NewSQS(ctx, cfg.Queue.Region, cfg.Queue.QueueURLs, cfg.Queue.WaitTimeSecs)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, transport)
		if err != nil {
			return err
		}
		defer env.Close()

		route := env.Pipeline.Routes(env.Ingest)

		g, ctx := errgroup.WithContext(ctx)
		started := 0
		for _, topic := range queue.Topics() {
			h, ok := route(topic)
			if !ok {
				continue
			}
			if _, configured := cfg.Queue.QueueURLs[string(topic)]; !configured {
				zap.L().Warn("no queue configured for topic, skipping", zap.String("topic", string(topic)))
				continue
			}
			topic := topic
			g.Go(func() error {
				return transport.Consume(ctx, topic, h)
			})
			started++
		}
		if started == 0 {
			zap.L().Error("no consumers started; configure queue.queue_urls")
			return nil
		}

		zap.L().Info("workers started", zap.Int("topics", started))
		err = g.Wait()
		if ctx.Err() != nil {
			zap.L().Info("workers stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
