package solana

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-ddca/internal/domain"
)

// Plan account layout, little endian:
//
//	discriminator [8] | owner [32] | from_mint [32] | to_mint [32] |
//	amount_per_swap u64 | interval_seconds i64 | start_timestamp i64 |
//	last_completed_swap_timestamp i64 | total_deposited_amount u64 |
//	is_paused u8 | bump u8
const (
	PlanAccountSize = 170

	offOwner          = 8
	offFromMint       = 40
	offToMint         = 72
	offAmountPerSwap  = 104
	offInterval       = 112
	offStart          = 120
	offLastSwap       = 128
	offTotalDeposited = 136
	offIsPaused       = 144
	offBump           = 145
)

// PlanAccountDiscriminator prefixes every plan account.
var PlanAccountDiscriminator = accountDiscriminator("DcaPlan")

// ErrNotPlanAccount is returned when account data is not a plan account.
var ErrNotPlanAccount = errors.New("not a plan account")

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// PlanDiscriminatorFilter matches plan accounts in getProgramAccounts.
func PlanDiscriminatorFilter() MemcmpFilter {
	return MemcmpFilter{Offset: 0, Bytes: base58.Encode(PlanAccountDiscriminator[:])}
}

// DecodePlanAccount decodes raw plan account data.
func DecodePlanAccount(id domain.PlanID, data []byte) (*domain.Plan, uint8, error) {
	if len(data) < PlanAccountSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrNotPlanAccount, len(data))
	}
	if !bytes.Equal(data[:8], PlanAccountDiscriminator[:]) {
		return nil, 0, fmt.Errorf("%w: discriminator mismatch", ErrNotPlanAccount)
	}

	le := binary.LittleEndian
	p := &domain.Plan{
		ID:                         id,
		Owner:                      keyAt(data, offOwner),
		FromMint:                   keyAt(data, offFromMint),
		ToMint:                     keyAt(data, offToMint),
		AmountPerSwap:              le.Uint64(data[offAmountPerSwap:]),
		IntervalSeconds:            int64(le.Uint64(data[offInterval:])),
		StartTimestamp:             int64(le.Uint64(data[offStart:])),
		LastCompletedSwapTimestamp: int64(le.Uint64(data[offLastSwap:])),
		TotalDepositedAmount:       le.Uint64(data[offTotalDeposited:]),
		IsPaused:                   data[offIsPaused] != 0,
	}
	return p, data[offBump], nil
}

// DecodePlanAccountBase64 decodes base64 account data as returned by RPC.
func DecodePlanAccountBase64(id domain.PlanID, data string) (*domain.Plan, uint8, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode account data: %w", err)
	}
	return DecodePlanAccount(id, raw)
}

// EncodePlanAccount encodes p in the plan account layout.
func EncodePlanAccount(p domain.Plan, bump uint8) ([]byte, error) {
	data := make([]byte, PlanAccountSize)
	copy(data, PlanAccountDiscriminator[:])

	for off, addr := range map[int]string{
		offOwner:    p.Owner,
		offFromMint: p.FromMint,
		offToMint:   p.ToMint,
	} {
		key, err := ParsePubkey(addr)
		if err != nil {
			return nil, err
		}
		copy(data[off:], key[:])
	}

	le := binary.LittleEndian
	le.PutUint64(data[offAmountPerSwap:], p.AmountPerSwap)
	le.PutUint64(data[offInterval:], uint64(p.IntervalSeconds))
	le.PutUint64(data[offStart:], uint64(p.StartTimestamp))
	le.PutUint64(data[offLastSwap:], uint64(p.LastCompletedSwapTimestamp))
	le.PutUint64(data[offTotalDeposited:], p.TotalDepositedAmount)
	if p.IsPaused {
		data[offIsPaused] = 1
	}
	data[offBump] = bump
	return data, nil
}

func keyAt(data []byte, off int) string {
	var k Pubkey
	copy(k[:], data[off:off+32])
	return k.String()
}
