package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"solana-ddca/internal/config"
	"solana-ddca/internal/solana"
	"solana-ddca/internal/waker"
)

var (
	flagWakerDryRun bool
	flagWakerOnce   bool
	flagWakerAddr   string
)

var wakerCmd = &cobra.Command{
	Use:   "waker",
	Short: "Reconcile plans on a schedule and execute due swaps",
	Long: `Runs the waker against the configured plan source.

The chain source only observes: due plans are reported on /status and in the
logs, while swaps are submitted by the on-chain program's executors. The
postgres and memory sources settle due swaps with the simulated executor
unless --dry-run is set. The memory source starts with the plans listed under
plans: in the config file and keeps no state between runs.`,
	RunE: runWaker,
}

func init() {
	wakerCmd.Flags().BoolVar(&flagWakerDryRun, "dry-run", false, "Report due swaps without executing them")
	wakerCmd.Flags().BoolVar(&flagWakerOnce, "once", false, "Run a single pass, print its summary and exit")
	wakerCmd.Flags().StringVar(&flagWakerAddr, "http-addr", "", "HTTP listen address override")
	rootCmd.AddCommand(wakerCmd)
}

func runWaker(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cmd.Flags().Changed("dry-run") {
		cfg.Waker.DryRun = flagWakerDryRun
	}
	if flagWakerAddr != "" {
		cfg.HTTP.Addr = flagWakerAddr
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	w, err := newWaker(cfg, b)
	if err != nil {
		return err
	}

	if flagWakerOnce {
		summary, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), struct {
			*waker.RunSummary
			Statuses []waker.PlanStatus `json:"statuses"`
		}{summary, w.Snapshot().Plans})
	}

	g, gctx := errgroup.WithContext(ctx)

	if b.source == config.SourceChain && cfg.Solana.WSURL != "" {
		ws, err := solana.NewWSClient(gctx, cfg.Solana.WSURL, nil, logger)
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		defer ws.Close()
		notifications, err := ws.SubscribeProgram(gctx, b.programID.String())
		if err != nil {
			return fmt.Errorf("subscribe program: %w", err)
		}
		g.Go(func() error {
			w.Watch(gctx, notifications)
			return nil
		})
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newHTTPHandler(w, time.Now()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error { return serveHTTP(gctx, srv, logger) })
	g.Go(func() error { return w.Run(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// newWaker wires the waker for backend b. Dry runs and the chain source get
// no ledger, which makes the waker observe-only.
func newWaker(c *config.Config, b *backend) (*waker.Waker, error) {
	swapTimeout, err := c.Waker.SwapTimeoutDuration()
	if err != nil {
		return nil, err
	}

	opts := waker.Options{
		Reader:      b.reader,
		Clock:       b.clock,
		History:     b.sinks,
		Logger:      logger,
		Concurrency: c.Waker.Concurrency,
		Schedule:    c.Waker.Schedule,
		SwapTimeout: swapTimeout,
	}
	if b.ledger != nil && !c.Waker.DryRun {
		opts.Ledger = b.ledger
		opts.Executor = waker.SimulatedExecutor{PriceNum: 1, PriceDen: 1}
	}
	return waker.New(opts)
}
