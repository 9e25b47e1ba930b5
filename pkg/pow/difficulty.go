package pow

import (
	"errors"

	"lukechampine.com/uint128"
)

// ErrZeroDifficulty is returned when a zero difficulty is configured.
var ErrZeroDifficulty = errors.New("pow: difficulty must be at least 1")

// Difficulty divides the hash space; roughly 1 in Difficulty random proofs is valid.
type Difficulty uint32

// NewDifficulty validates a configured difficulty.
func NewDifficulty(v uint32) (Difficulty, error) {
	if v == 0 {
		return 0, ErrZeroDifficulty
	}
	return Difficulty(v), nil
}

// Threshold returns floor((2^128 - 1) / d). A zero difficulty never reaches
// this point through NewDifficulty; it yields a zero threshold that accepts nothing.
func (d Difficulty) Threshold() Uint128 {
	if d == 0 {
		return uint128.Zero
	}
	return uint128.Max.Div64(uint64(d))
}

// IsValid reports whether the digest of p lies strictly below the threshold for d.
func IsValid(p Proof, d Difficulty) bool {
	return p.Digest().Cmp(d.Threshold()) < 0
}
