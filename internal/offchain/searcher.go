package offchain

import (
	"context"
	crand "crypto/rand"
	"math/rand/v2"

	"kittycore/internal/core"
	"kittycore/pkg/domain"
	"kittycore/pkg/pow"
)

// MaxIterations bounds pair sampling plus solution search in one run.
const MaxIterations = 500

// LockName is the advisory lock taken by every search run.
const LockName = "kitties/auto-breed"

// Registry is the read surface the searcher samples from.
type Registry interface {
	PopulationSize() uint32
	Lookup(id domain.KittyID) (domain.Kitty, bool)
	CurrentNonce() uint32
	Difficulty() pow.Difficulty
}

// Submitter accepts found proofs without blocking.
type Submitter interface {
	Submit(p pow.Proof, tag SubmitTag) bool
}

// SubmitTag carries the step a proof was found at and how many steps it
// stays eligible.
type SubmitTag struct {
	Step      uint64
	Longevity uint64
}

// SchedulerContext describes the step a search runs in.
type SchedulerContext struct {
	Step uint64
}

// RandFactory returns a fresh generator for one search run.
type RandFactory func() *rand.Rand

// ChaCha8Factory seeds a ChaCha8 generator from crypto/rand for every run.
func ChaCha8Factory() *rand.Rand {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

// Searcher looks for a valid breeding proof once per step.
type Searcher struct {
	registry  Registry
	submitter Submitter
	lock      *AdvisoryLock
	rand      RandFactory
	longevity uint64
	logger    core.Logger
	metrics   *Metrics
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithRandFactory replaces the per-run generator source.
func WithRandFactory(f RandFactory) SearcherOption {
	return func(s *Searcher) {
		if f != nil {
			s.rand = f
		}
	}
}

// WithLock shares a lock table between searchers.
func WithLock(lock *AdvisoryLock) SearcherOption {
	return func(s *Searcher) {
		if lock != nil {
			s.lock = lock
		}
	}
}

// WithLongevity sets how many steps submitted proofs stay eligible.
func WithLongevity(steps uint64) SearcherOption {
	return func(s *Searcher) {
		if steps > 0 {
			s.longevity = steps
		}
	}
}

// WithSearchLogger sets the searcher logger.
func WithSearchLogger(logger core.Logger) SearcherOption {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSearchMetrics records run outcomes.
func WithSearchMetrics(m *Metrics) SearcherOption {
	return func(s *Searcher) { s.metrics = m }
}

// NewSearcher builds a searcher over registry submitting to submitter.
func NewSearcher(registry Registry, submitter Submitter, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		registry:  registry,
		submitter: submitter,
		lock:      NewAdvisoryLock(),
		rand:      ChaCha8Factory,
		longevity: core.DefaultProofLongevity,
		logger:    core.NoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one bounded search. It reports the proof it submitted, if
// any; a proof the submitter refuses is not reported. Pair sampling and
// solution search share MaxIterations. Running out of budget is a normal
// outcome, not an error.
func (s *Searcher) Run(ctx context.Context, sc SchedulerContext) (pow.Proof, bool) {
	if !s.lock.TryAcquire(LockName, sc.Step, sc.Step+1) {
		s.logger.Debug("search skipped, lock held", "step", sc.Step)
		s.metrics.search(OutcomeLockHeld, 0)
		return pow.Proof{}, false
	}
	rng := s.rand()
	population := s.registry.PopulationSize()

	first, second, used, found := s.samplePair(ctx, rng, population)
	if !found {
		s.logger.Debug("search found no eligible pair", "step", sc.Step, "population", population, "iterations", used)
		s.metrics.search(OutcomeNoPair, used)
		return pow.Proof{}, false
	}

	nonce := s.registry.CurrentNonce()
	difficulty := s.registry.Difficulty()
	prefix := rng.Uint32()
	remaining := MaxIterations - used
	tried := 0
	for solution := range solutions(prefix, remaining) {
		tried++
		p := pow.Proof{PairID1: uint32(first), PairID2: uint32(second), Nonce: nonce, Solution: solution}
		if !pow.IsValid(p, difficulty) {
			continue
		}
		if !s.submitter.Submit(p, SubmitTag{Step: sc.Step, Longevity: s.longevity}) {
			s.logger.Warn("pool refused proof", "step", sc.Step, "proof", p.String())
			s.metrics.search(OutcomeDropped, used+tried)
			return pow.Proof{}, false
		}
		s.logger.Debug("proof submitted", "step", sc.Step, "proof", p.String())
		s.metrics.search(OutcomeSubmitted, used+tried)
		return p, true
	}
	s.logger.Debug("search exhausted", "step", sc.Step, "pair", []domain.KittyID{first, second})
	s.metrics.search(OutcomeNoSolution, used+tried)
	return pow.Proof{}, false
}

func (s *Searcher) samplePair(ctx context.Context, rng *rand.Rand, population uint32) (domain.KittyID, domain.KittyID, int, bool) {
	used := 0
	for n, ids := range pairDraws(rng, population, MaxIterations) {
		used = n
		if ctx.Err() != nil {
			break
		}
		a, okA := s.registry.Lookup(ids[0])
		b, okB := s.registry.Lookup(ids[1])
		if !okA || !okB {
			s.logger.Warn("registry lookup failed", "first", ids[0], "second", ids[1])
			continue
		}
		if (domain.BreedingPair{First: a.ID, Second: b.ID}).Eligible(a.DNA, b.DNA) {
			return a.ID, b.ID, used, true
		}
	}
	return 0, 0, used, false
}
