package solana_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/solana"
	"solana-ddca/internal/solana/stub"
	"solana-ddca/internal/storage"
)

const (
	owner   = "Vote111111111111111111111111111111111111111"
	usdc    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	wsol    = "So11111111111111111111111111111111111111112"
	program = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// seedPlan stores a plan account and its vault balance, returning the plan ID.
func seedPlan(t *testing.T, rpc *stub.RPCClient, programID solana.Pubkey, start int64, balance uint64) domain.PlanID {
	t.Helper()
	return seedPlanAccount(t, rpc, programID, domain.Plan{
		Owner:                owner,
		FromMint:             usdc,
		ToMint:               wsol,
		AmountPerSwap:        20,
		IntervalSeconds:      3600,
		StartTimestamp:       start,
		TotalDepositedAmount: balance,
	}, balance)
}

func seedPlanAccount(t *testing.T, rpc *stub.RPCClient, programID solana.Pubkey, p domain.Plan, balance uint64) domain.PlanID {
	t.Helper()

	addr, err := solana.PlanAddress(programID, p.Owner, p.FromMint, p.ToMint, p.StartTimestamp)
	require.NoError(t, err)
	vault, err := solana.VaultAddress(programID, addr)
	require.NoError(t, err)

	data, err := solana.EncodePlanAccount(p, 255)
	require.NoError(t, err)

	rpc.SetAccount(addr.String(), programID.String(), data)
	rpc.SetTokenBalance(vault.String(), balance)
	return domain.PlanID(addr.String())
}

func TestChainReader_FetchPlan(t *testing.T) {
	programID, err := solana.ParsePubkey(program)
	require.NoError(t, err)

	rpc := stub.NewRPCClient()
	id := seedPlan(t, rpc, programID, 1_700_000_000, 100)

	r := solana.NewChainReader(rpc, programID)
	s, err := r.FetchPlan(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, s.ID)
	assert.Equal(t, owner, s.Owner)
	assert.Equal(t, int64(3600), s.IntervalSeconds)
	assert.Equal(t, int64(1_700_000_000), s.StartTimestamp)
	assert.Equal(t, uint64(100), s.FromBalance)
}

func TestChainReader_FetchPlan_NotFound(t *testing.T) {
	programID, err := solana.ParsePubkey(program)
	require.NoError(t, err)

	r := solana.NewChainReader(stub.NewRPCClient(), programID)
	_, err = r.FetchPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChainReader_FetchPlan_WrongOwner(t *testing.T) {
	programID, err := solana.ParsePubkey(program)
	require.NoError(t, err)

	rpc := stub.NewRPCClient()
	id := seedPlan(t, rpc, programID, 1_700_000_000, 100)
	rpc.Accounts[string(id)].Owner = wsol

	r := solana.NewChainReader(rpc, programID)
	_, err = r.FetchPlan(context.Background(), id)
	assert.ErrorIs(t, err, solana.ErrNotPlanAccount)
}

func TestChainReader_FetchPlan_InvalidTerms(t *testing.T) {
	programID, err := solana.ParsePubkey(program)
	require.NoError(t, err)

	tests := []struct {
		name     string
		amount   uint64
		interval int64
	}{
		{"zero interval", 20, 0},
		{"negative interval", 20, -3600},
		{"interval below minimum", 20, 60},
		{"zero amount", 0, 3600},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := stub.NewRPCClient()
			id := seedPlanAccount(t, rpc, programID, domain.Plan{
				Owner:           owner,
				FromMint:        usdc,
				ToMint:          wsol,
				AmountPerSwap:   tt.amount,
				IntervalSeconds: tt.interval,
				StartTimestamp:  1_700_000_000 + int64(i),
			}, 100)

			_, err := solana.NewChainReader(rpc, programID).FetchPlan(context.Background(), id)
			assert.ErrorIs(t, err, domain.ErrInvalidPlanConfiguration)
		})
	}
}

func TestChainReader_ListPlans(t *testing.T) {
	programID, err := solana.ParsePubkey(program)
	require.NoError(t, err)

	rpc := stub.NewRPCClient()
	a := seedPlan(t, rpc, programID, 1_700_000_000, 100)
	b := seedPlan(t, rpc, programID, 1_700_003_600, 50)
	// Non-plan account owned by the program is filtered by size.
	rpc.SetAccount(usdc, programID.String(), []byte{1, 2, 3})

	r := solana.NewChainReader(rpc, programID)
	ids, err := r.ListPlans(context.Background())
	require.NoError(t, err)

	want := []domain.PlanID{a, b}
	if want[0] > want[1] {
		want[0], want[1] = want[1], want[0]
	}
	assert.Equal(t, want, ids)
}

func TestClusterClock(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetClock(250_000_000, 1_700_000_123)

	now, err := solana.NewClusterClock(rpc).Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_123), now)

	rpc.Slot = 250_000_001
	_, err = solana.NewClusterClock(rpc).Now(context.Background())
	assert.Error(t, err)
}
