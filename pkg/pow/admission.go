package pow

import (
	"errors"
	"fmt"
	"math"
)

// ErrBadProof is returned when a proof targets a stale nonce or misses the difficulty threshold.
var ErrBadProof = errors.New("bad proof")

// AdmissionState holds the current nonce epoch. Exactly one proof is admitted
// per epoch; admitting it advances the epoch so the same proof can never
// match again. Callers must hold exclusive access while calling Admit.
type AdmissionState struct {
	Nonce uint32 `json:"nonce"`
}

// Check validates p against the current epoch without mutating state.
func (s *AdmissionState) Check(p Proof, d Difficulty) error {
	if p.Nonce != s.Nonce {
		return fmt.Errorf("%w: nonce %d, current %d", ErrBadProof, p.Nonce, s.Nonce)
	}
	if !IsValid(p, d) {
		return fmt.Errorf("%w: digest above difficulty %d threshold", ErrBadProof, d)
	}
	return nil
}

// Admit performs the compare-and-increment: it validates p and advances the
// nonce by one, saturating at math.MaxUint32. On error the state is untouched.
func (s *AdmissionState) Admit(p Proof, d Difficulty) error {
	if err := s.Check(p, d); err != nil {
		return err
	}
	if s.Nonce < math.MaxUint32 {
		s.Nonce++
	}
	return nil
}
