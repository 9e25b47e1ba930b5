package core

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"kittycore/pkg/domain"
)

// EntropySource supplies the raw randomness mixed into DNA and crossover
// selectors. Subject identifies what the randomness is for.
type EntropySource interface {
	Seed(subject []byte) [domain.GenomeSize]byte
}

type cryptoEntropy struct{}

func (cryptoEntropy) Seed([]byte) [domain.GenomeSize]byte {
	var b [domain.GenomeSize]byte
	_, _ = rand.Read(b[:])
	return b
}

// CryptoEntropy returns the production entropy source backed by crypto/rand.
func CryptoEntropy() EntropySource { return cryptoEntropy{} }

// FixedEntropy returns the same seed for every subject. Useful in tests where
// DNA must be reproducible.
type FixedEntropy [domain.GenomeSize]byte

// Seed implements EntropySource.
func (f FixedEntropy) Seed([]byte) [domain.GenomeSize]byte { return f }

var entropySubject = []byte("kitties")

// deriveValue hashes seed, caller and call index into 16 bytes with blake2b-128.
func deriveValue(seed [domain.GenomeSize]byte, caller domain.AccountID, index uint32) [domain.GenomeSize]byte {
	h, err := blake2b.New(domain.GenomeSize, nil)
	if err != nil {
		panic(err)
	}
	_, _ = h.Write(seed[:])
	_, _ = h.Write([]byte(caller))
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	_, _ = h.Write(idx[:])
	var out [domain.GenomeSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// randomValue draws a fresh 16-byte value for caller. Every call advances the
// service-wide call index so two draws never share inputs.
func (s *Service) randomValue(caller domain.AccountID) [domain.GenomeSize]byte {
	index := s.calls.Add(1) - 1
	return deriveValue(s.entropy.Seed(entropySubject), caller, index)
}
