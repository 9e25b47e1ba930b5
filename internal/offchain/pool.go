package offchain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"kittycore/internal/core"
	"kittycore/pkg/domain"
	"kittycore/pkg/pow"
)

// DefaultPoolCapacity is the pending queue size used when none is given.
const DefaultPoolCapacity = 32

// Admitter validates and admits proofs. *core.Service implements it.
type Admitter interface {
	ValidateProof(ctx context.Context, p pow.Proof) (core.Validity, error)
	Admit(ctx context.Context, p pow.Proof) (domain.KittyID, error)
}

// Outcome reports what the pool did with one proof.
type Outcome struct {
	Proof   pow.Proof
	Result  string
	ChildID domain.KittyID
	Err     error
}

type pending struct {
	proof pow.Proof
	tag   SubmitTag
	key   string
}

// Pool queues submitted proofs and admits them one at a time on a single
// worker goroutine. Submission never blocks.
type Pool struct {
	admitter Admitter
	logger   core.Logger
	metrics  *Metrics
	onResult func(Outcome)

	queue   chan pending
	mu      sync.Mutex
	pending map[string]struct{}
	step    atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger.
func WithPoolLogger(logger core.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPoolMetrics records pool outcomes.
func WithPoolMetrics(m *Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// WithOutcomeHook is called on the worker goroutine after every processed proof.
func WithOutcomeHook(fn func(Outcome)) PoolOption {
	return func(p *Pool) { p.onResult = fn }
}

// NewPool builds a pool draining into admitter.
func NewPool(admitter Admitter, capacity int, opts ...PoolOption) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		admitter: admitter,
		logger:   core.NoopLogger(),
		queue:    make(chan pending, capacity),
		pending:  make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Advance moves the pool clock used for longevity checks.
func (p *Pool) Advance(step uint64) { p.step.Store(step) }

// Len reports the number of queued proofs.
func (p *Pool) Len() int { return len(p.queue) }

// Submit enqueues proof. It returns false when a proof for the same nonce
// epoch is already pending or the queue is full.
func (p *Pool) Submit(proof pow.Proof, tag SubmitTag) bool {
	key := core.ProvidesTag(proof.Nonce)
	p.mu.Lock()
	if _, dup := p.pending[key]; dup {
		p.mu.Unlock()
		p.metrics.poolOutcome(OutcomeDuplicate)
		return false
	}
	p.pending[key] = struct{}{}
	p.mu.Unlock()

	select {
	case p.queue <- pending{proof: proof, tag: tag, key: key}:
		p.metrics.queueDepth(len(p.queue))
		return true
	default:
		p.release(key)
		p.logger.Warn("pool full, proof dropped", "proof", proof.String())
		p.metrics.poolOutcome(OutcomeFull)
		return false
	}
}

// Start launches the admission worker.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go p.loop()
}

// Stop halts the worker and waits for it to exit or ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case item := <-p.queue:
			p.metrics.queueDepth(len(p.queue))
			p.process(item)
		}
	}
}

var errStale = errors.New("proof outlived its longevity")

func (p *Pool) process(item pending) {
	defer p.release(item.key)
	out := Outcome{Proof: item.proof}
	defer func() {
		p.metrics.poolOutcome(out.Result)
		if p.onResult != nil {
			p.onResult(out)
		}
	}()

	if now := p.step.Load(); now > item.tag.Step+item.tag.Longevity {
		out.Result, out.Err = OutcomeStale, errStale
		p.logger.Debug("stale proof dropped", "proof", item.proof.String(), "found_at", item.tag.Step, "now", now)
		return
	}
	if _, err := p.admitter.ValidateProof(p.ctx, item.proof); err != nil {
		out.Result, out.Err = OutcomeRejected, err
		p.logger.Debug("proof rejected before admission", "proof", item.proof.String(), "error", err)
		return
	}
	child, err := p.admitter.Admit(p.ctx, item.proof)
	if err != nil {
		out.Result, out.Err = OutcomeRejected, err
		p.logger.Warn("proof admission failed", "proof", item.proof.String(), "error", err)
		return
	}
	out.Result, out.ChildID = OutcomeAdmitted, child
}

func (p *Pool) release(key string) {
	p.mu.Lock()
	delete(p.pending, key)
	p.mu.Unlock()
}
