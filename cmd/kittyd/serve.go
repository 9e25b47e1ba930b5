package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kittycore/internal/core"
	"kittycore/internal/node"
	"kittycore/internal/offchain"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the step loop, background search and admission pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRec, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return err
	}
	offMetrics, err := offchain.NewMetrics(reg)
	if err != nil {
		return err
	}
	expvarRec := core.NewExpvarMetricsRecorder("")

	rt, err := a.open(ctx, core.WithMetricsRecorder(core.MultiMetricsRecorder{promRec, expvarRec}))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	logger := core.NewZapLogger(a.logger)
	pool := offchain.NewPool(rt.svc, a.cfg.PoolCapacity,
		offchain.WithPoolLogger(logger),
		offchain.WithPoolMetrics(offMetrics),
	)
	searcher := offchain.NewSearcher(rt.svc, pool,
		offchain.WithLongevity(a.cfg.ProofLongevity),
		offchain.WithSearchLogger(logger),
		offchain.WithSearchMetrics(offMetrics),
	)
	n := node.New(node.Config{StepInterval: a.cfg.StepInterval, HTTPAddr: a.cfg.HTTPAddr}, searcher, pool,
		node.WithLogger(logger),
		node.WithGatherer(reg),
		node.WithRefresher(rt.svc.Refresh),
	)
	a.logger.Info("serving",
		zap.String("storage", string(a.cfg.Storage.Driver)),
		zap.Uint32("difficulty", a.cfg.Difficulty),
		zap.Uint32("population", rt.svc.PopulationSize()),
		zap.Uint32("nonce", rt.svc.CurrentNonce()),
	)
	return n.Run(ctx)
}
