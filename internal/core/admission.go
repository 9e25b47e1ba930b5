package core

import (
	"context"
	"fmt"

	"kittycore/pkg/domain"
	"kittycore/pkg/pow"
)

// ProofPriority is the pool priority assigned to every valid proof.
const ProofPriority uint64 = 1 << 20

// DefaultProofLongevity is how many steps a validated proof stays eligible
// in the pending pool.
const DefaultProofLongevity uint64 = 5

// Validity describes how the pending pool should treat a proof that passed
// read-only validation.
type Validity struct {
	Priority  uint64
	Longevity uint64
	// Provides tags the nonce epoch the proof consumes. Two proofs with the
	// same tag are mutually exclusive.
	Provides string
}

// ProvidesTag returns the pool tag for a nonce epoch.
func ProvidesTag(nonce uint32) string {
	return fmt.Sprintf("kitties/auto-breed/%d", nonce)
}

type resolver interface {
	FindKitty(id domain.KittyID) (domain.Kitty, bool)
}

// resolvePair resolves both ids of p and checks the gender precondition.
func resolvePair(view resolver, p pow.Proof) (Kitty, Kitty, error) {
	a, okA := view.FindKitty(KittyID(p.PairID1))
	b, okB := view.FindKitty(KittyID(p.PairID2))
	if !okA || !okB {
		return Kitty{}, Kitty{}, fmt.Errorf("proof pair %d x %d: %w", p.PairID1, p.PairID2, domain.ErrInvalidKittyID)
	}
	if !(domain.BreedingPair{First: a.ID, Second: b.ID}).Eligible(a.DNA, b.DNA) {
		return Kitty{}, Kitty{}, fmt.Errorf("proof pair %d x %d: %w", p.PairID1, p.PairID2, domain.ErrSameGender)
	}
	return a, b, nil
}

// Admit verifies p and, when it targets the current nonce and meets the
// difficulty, advances the nonce and mints the crossover child to the owner
// of the first kitty. Every failure leaves the nonce and population unchanged.
func (s *Service) Admit(ctx context.Context, p pow.Proof) (KittyID, error) {
	var (
		child Kitty
		nonce uint32
	)
	_, err := s.run(ctx, "admit_proof", func(tx Transaction) (string, error) {
		a, b, err := resolvePair(tx, p)
		if err != nil {
			return "", err
		}
		state := tx.Admission()
		nonce = state.Nonce
		if err := state.Admit(p, s.difficulty); err != nil {
			return "", err
		}
		dna := domain.Crossover(a.DNA, b.DNA, s.randomValue(a.Owner))
		child, err = tx.CreateKitty(Kitty{Owner: a.Owner, DNA: dna, Parents: []KittyID{a.ID, b.ID}})
		if err != nil {
			return "", err
		}
		return kittyRef(child.ID), nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("proof admitted", "nonce", nonce, "child", child.ID, "owner", child.Owner)
	s.publish(ctx, Event{Kind: domain.EventKittyBred, Owner: child.Owner, KittyID: child.ID, DNA: genomePtr(child.DNA)})
	if s.receipts != nil {
		if err := s.receipts.archive(ctx, newReceipt(p, nonce, child, s.clock.Now())); err != nil {
			s.logger.Warn("receipt archive failed", "nonce", nonce, "child", child.ID, "error", err)
		}
	}
	return child.ID, nil
}

// ValidateProof runs the admission checks against committed state without
// mutating anything.
func (s *Service) ValidateProof(ctx context.Context, p pow.Proof) (Validity, error) {
	var validity Validity
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, _, err := resolvePair(view, p); err != nil {
			return err
		}
		state := pow.AdmissionState{Nonce: view.AdmissionNonce()}
		if err := state.Check(p, s.difficulty); err != nil {
			return err
		}
		validity = Validity{
			Priority:  ProofPriority,
			Longevity: DefaultProofLongevity,
			Provides:  ProvidesTag(p.Nonce),
		}
		return nil
	})
	return validity, err
}
