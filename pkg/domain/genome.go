package domain

import "encoding/hex"

// GenomeSize is the fixed length of a kitty's DNA in bytes.
const GenomeSize = 16

// Genome is the immutable heritable data of a kitty.
type Genome [GenomeSize]byte

// Gender is derived from the parity of the first DNA byte.
type Gender string

// Genders recognised by the breeding rules.
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Gender returns GenderMale for an even first byte and GenderFemale otherwise.
func (g Genome) Gender() Gender {
	if g[0]%2 == 0 {
		return GenderMale
	}
	return GenderFemale
}

// Crossover mixes two parent genomes bit by bit: each output bit comes from a
// where the selector bit is 0 and from b where it is 1. It does not check
// genders; callers enforce that precondition.
func Crossover(a, b Genome, selector [GenomeSize]byte) Genome {
	var out Genome
	for i := range out {
		out[i] = (^selector[i] & a[i]) | (selector[i] & b[i])
	}
	return out
}

// String renders the genome as lowercase hex.
func (g Genome) String() string { return hex.EncodeToString(g[:]) }

// MarshalText implements encoding.TextMarshaler.
func (g Genome) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Genome) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != GenomeSize {
		return hex.ErrLength
	}
	var out Genome
	if _, err := hex.Decode(out[:], text); err != nil {
		return err
	}
	*g = out
	return nil
}
