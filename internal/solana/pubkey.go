package solana

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Pubkey is a 32-byte Solana account address.
type Pubkey [32]byte

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(decoded) != len(pk) {
		return pk, fmt.Errorf("pubkey %q must be 32 bytes, got %d", s, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}

// String returns the base58 form.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// PDA seed prefixes of the DDCA program.
var (
	planSeed  = []byte("ddca")
	vaultSeed = []byte("vault")
)

// FindProgramAddress derives a Program Derived Address.
// 1. Concatenate seeds with bump
// 2. Append program ID and "ProgramDerivedAddress" marker
// 3. SHA256 hash
// 4. Take the first bump (from 255 down) whose hash is off the ed25519 curve
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID[:]...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return Pubkey(hash), bump, nil
		}
	}
	return Pubkey{}, 0, fmt.Errorf("no viable bump seed")
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// PlanAddress derives the plan account address from its immutable fields.
// Seeds: "ddca" | owner | from_mint | to_mint | start_timestamp (u64 LE).
func PlanAddress(programID Pubkey, owner, fromMint, toMint string, startTimestamp int64) (Pubkey, error) {
	var seeds [][]byte
	seeds = append(seeds, planSeed)
	for _, s := range []string{owner, fromMint, toMint} {
		pk, err := ParsePubkey(s)
		if err != nil {
			return Pubkey{}, err
		}
		seeds = append(seeds, pk[:])
	}
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(startTimestamp))
	seeds = append(seeds, ts[:])

	addr, _, err := FindProgramAddress(seeds, programID)
	return addr, err
}

// VaultAddress derives the from-token vault address owned by a plan.
// Seeds: "vault" | plan.
func VaultAddress(programID, plan Pubkey) (Pubkey, error) {
	addr, _, err := FindProgramAddress([][]byte{vaultSeed, plan[:]}, programID)
	return addr, err
}
