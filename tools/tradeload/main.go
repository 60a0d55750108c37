// Command tradeload puts a running sandbox under concurrent trading load
// while holding trade streams open.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/logging"
)

type runOptions struct {
	wallets     int
	workers     int
	subscribers int
	minEth      float64
	maxEth      float64
	maxTokens   float64
	ratio       float64
	seed        int64
	duration    time.Duration
	report      time.Duration
}

func main() {
	var (
		url  string
		opts runOptions
	)

	cmd := &cobra.Command{
		Use:          "tradeload",
		Short:        "Generate trading load against a sandbox server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.wallets <= 0 || opts.workers <= 0 {
				return fmt.Errorf("wallets and workers must be positive")
			}
			if opts.report <= 0 {
				opts.report = 5 * time.Second
			}

			logger, err := logging.New("info", true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}

			logger.Info("starting trade load",
				zap.String("url", url),
				zap.Int("wallets", opts.wallets),
				zap.Int("workers", opts.workers),
				zap.Int("subscribers", opts.subscribers),
				zap.Duration("duration", opts.duration))
			return NewLoader(url, logger).Run(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&url, "url", "http://localhost:5001", "sandbox base URL")
	f.IntVar(&opts.wallets, "wallets", 100, "wallets to generate and fund")
	f.IntVar(&opts.workers, "workers", 8, "concurrent trading workers")
	f.IntVar(&opts.subscribers, "subscribers", 10, "trade stream connections to hold open")
	f.Float64Var(&opts.minEth, "min-eth", 0.1, "minimum ETH per funded wallet")
	f.Float64Var(&opts.maxEth, "max-eth", 2, "maximum ETH per funded wallet and per buy")
	f.Float64Var(&opts.maxTokens, "max-tokens", 10000, "maximum tokens per sell")
	f.Float64Var(&opts.ratio, "ratio-without-tokens", 0.3, "share of wallets left without tokens")
	f.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "random seed")
	f.DurationVar(&opts.duration, "dur", time.Minute, "test duration (0 for until interrupted)")
	f.DurationVar(&opts.report, "report", 5*time.Second, "status report interval")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
