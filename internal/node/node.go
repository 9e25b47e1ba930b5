// Package node drives the discrete step clock: every step it advances the
// pending pool and runs one background search, while the pool worker admits
// proofs and an HTTP listener serves metrics.
package node

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"kittycore/internal/core"
	"kittycore/internal/offchain"
)

// Config controls the step loop and the metrics listener.
type Config struct {
	StepInterval time.Duration
	// HTTPAddr is the metrics listen address. Empty disables the listener.
	HTTPAddr string
}

// Searcher runs one bounded search per step.
type Searcher interface {
	Run(ctx context.Context, sc offchain.SchedulerContext) (core.Proof, bool)
}

// Pool admits submitted proofs on its own worker.
type Pool interface {
	Start()
	Stop(ctx context.Context) error
	Advance(step uint64)
}

// Node owns the step loop.
type Node struct {
	cfg      Config
	searcher Searcher
	pool     Pool
	gatherer prometheus.Gatherer
	logger   core.Logger
	refresh  func(context.Context) error

	step  atomic.Uint64
	ready chan net.Addr
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(logger core.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithGatherer selects the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(n *Node) {
		if g != nil {
			n.gatherer = g
		}
	}
}

// WithRefresher runs fn at the start of every step so the search sees state
// committed by other processes.
func WithRefresher(fn func(context.Context) error) Option {
	return func(n *Node) { n.refresh = fn }
}

// New builds a node. A non-positive step interval falls back to one second.
func New(cfg Config, searcher Searcher, pool Pool, opts ...Option) *Node {
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = time.Second
	}
	n := &Node{
		cfg:      cfg,
		searcher: searcher,
		pool:     pool,
		gatherer: prometheus.DefaultGatherer,
		logger:   core.NoopLogger(),
		ready:    make(chan net.Addr, 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Step returns the last executed step.
func (n *Node) Step() uint64 { return n.step.Load() }

// Ready yields the bound metrics address once the listener is up.
func (n *Node) Ready() <-chan net.Addr { return n.ready }

// Handler serves /metrics and /debug/vars.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "step %d\n", n.Step())
	})
	return mux
}

// Tick executes one step: state is refreshed, the pool clock advances and
// one search runs.
func (n *Node) Tick(ctx context.Context) {
	step := n.step.Add(1)
	if n.refresh != nil {
		if err := n.refresh(ctx); err != nil {
			n.logger.Warn("refresh failed; searching cached state", "step", step, "error", err)
		}
	}
	n.pool.Advance(step)
	if p, ok := n.searcher.Run(ctx, offchain.SchedulerContext{Step: step}); ok {
		n.logger.Debug("step produced proof", "step", step, "proof", p.String())
	}
}

// Run drives the node until ctx is cancelled or a component fails.
func (n *Node) Run(ctx context.Context) error {
	var ln net.Listener
	if n.cfg.HTTPAddr != "" {
		var err error
		if ln, err = net.Listen("tcp", n.cfg.HTTPAddr); err != nil {
			return fmt.Errorf("listen %s: %w", n.cfg.HTTPAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	n.pool.Start()
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return n.pool.Stop(stopCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(n.cfg.StepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n.Tick(gctx)
			}
		}
	})

	if ln != nil {
		srv := &http.Server{Handler: n.Handler(), ReadHeaderTimeout: 5 * time.Second}
		n.logger.Info("metrics listening", "addr", ln.Addr().String())
		n.ready <- ln.Addr()
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	n.logger.Info("node started", "step_interval", n.cfg.StepInterval)
	err := g.Wait()
	n.logger.Info("node stopped", "step", n.Step())
	return err
}
