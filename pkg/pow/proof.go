// Package pow implements the proof-of-work gate used to admit unsigned
// breeding requests: the proof wire encoding, the difficulty check and the
// nonce epoch that prevents a proof from being admitted twice.
package pow

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"lukechampine.com/uint128"
)

// Uint128 is the unsigned 128-bit integer used for solutions, digests and
// thresholds.
type Uint128 = uint128.Uint128

// EncodingVersion identifies the byte layout produced by Proof.Encode.
// Changing field order or width invalidates every previously valid proof and
// must bump this value.
const EncodingVersion = 1

// EncodedProofSize is the length of an encoded proof in bytes.
const EncodedProofSize = 4 + 4 + 4 + 16

const digestSize = 16

// Proof claims that the hash of its encoding falls below the threshold
// implied by the configured difficulty.
type Proof struct {
	PairID1  uint32  `json:"pair_id_1"`
	PairID2  uint32  `json:"pair_id_2"`
	Nonce    uint32  `json:"nonce"`
	Solution Uint128 `json:"solution"`
}

// SolutionAt builds the solution (prefix << 32) + i searched by background workers.
func SolutionAt(prefix uint32, i uint32) Uint128 {
	return uint128.From64(uint64(prefix)<<32 + uint64(i))
}

// Encode serializes the proof as pair_id_1 | pair_id_2 | nonce | solution,
// every field little-endian.
func (p Proof) Encode() [EncodedProofSize]byte {
	var out [EncodedProofSize]byte
	binary.LittleEndian.PutUint32(out[0:4], p.PairID1)
	binary.LittleEndian.PutUint32(out[4:8], p.PairID2)
	binary.LittleEndian.PutUint32(out[8:12], p.Nonce)
	p.Solution.PutBytes(out[12:28])
	return out
}

// Digest hashes the encoded proof with blake2b-128 and reads the result as a
// little-endian integer.
func (p Proof) Digest() Uint128 {
	h, err := blake2b.New(digestSize, nil)
	if err != nil {
		panic(fmt.Errorf("pow: blake2b-128: %w", err))
	}
	enc := p.Encode()
	_, _ = h.Write(enc[:])
	return uint128.FromBytes(h.Sum(nil))
}

func (p Proof) String() string {
	return fmt.Sprintf("proof(%d,%d,nonce=%d,solution=%s)", p.PairID1, p.PairID2, p.Nonce, p.Solution)
}
