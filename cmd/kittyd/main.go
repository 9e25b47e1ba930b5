// Command kittyd runs a kittycore node and offers registry maintenance
// subcommands against the configured store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kittycore/internal/blob"
	"kittycore/internal/core"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr, nil))
}

// cli runs kittyd with args. environ replaces the process environment when
// non-nil.
func cli(args []string, stdout, stderr io.Writer, environ map[string]string) int {
	root := newRootCmd(stdout, stderr, environ)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "kittyd: %v\n", err)
		return 1
	}
	return 0
}

type app struct {
	stdout  io.Writer
	stderr  io.Writer
	environ map[string]string

	logLevel   string
	sqlitePath string

	cfg    core.Config
	logger *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer, environ map[string]string) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, environ: environ}
	root := &cobra.Command{
		Use:           "kittyd",
		Short:         "Proof-of-work gated kitty breeding node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides KITTYCORE_LOG_LEVEL")
	root.PersistentFlags().StringVar(&a.sqlitePath, "db", "", "sqlite database path; overrides KITTYCORE_STORAGE_SQLITE_PATH")

	root.AddCommand(
		a.serveCmd(),
		a.mintCmd(),
		a.breedCmd(),
		a.transferCmd(),
		a.priceCmd(),
		a.showCmd(),
		a.receiptsCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := core.LoadConfig(a.environ)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.sqlitePath != "" {
		cfg.Storage.SQLitePath = a.sqlitePath
	}
	a.cfg = cfg

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	a.logger = zap.New(
		zapcore.NewCore(zapcore.NewJSONEncoder(zcfg.EncoderConfig), zapcore.AddSync(a.stderr), zcfg.Level),
	).Named("kittyd")
	return nil
}

// session is an opened store plus the service built over it.
type session struct {
	svc   *core.Service
	store core.PersistentStore
	blobs blob.Store
}

func (r *session) Close() error {
	return r.store.Close()
}

func (a *app) open(ctx context.Context, opts ...core.Option) (*session, error) {
	difficulty, err := a.cfg.PowDifficulty()
	if err != nil {
		return nil, err
	}
	store, err := core.OpenPersistentStore(a.cfg.Storage, core.NewDefaultRulesEngine(a.cfg.MaxPopulation))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt := &session{store: store}
	if a.cfg.ArchiveReceipts {
		blobs, err := blob.Open(ctx, a.cfg.Blob)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		rt.blobs = blobs
		opts = append(opts, core.WithReceiptArchive(blobs))
	}
	base := []core.Option{
		core.WithLogger(core.NewZapLogger(a.logger)),
		core.WithAuditRecorder(core.NewZapAuditRecorder(a.logger)),
		core.WithDifficulty(difficulty),
	}
	rt.svc = core.NewService(store, append(base, opts...)...)
	return rt, nil
}
