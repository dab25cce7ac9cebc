package solana

import (
	"context"
	"fmt"
	"sort"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/ledger"
	"solana-ddca/internal/storage"
)

// ChainReader implements ledger.Reader against on-chain plan accounts.
// The vault balance is read from the plan's vault token account.
type ChainReader struct {
	rpc       RPCClient
	programID Pubkey
}

// NewChainReader creates a new ChainReader for plans owned by programID.
func NewChainReader(rpc RPCClient, programID Pubkey) *ChainReader {
	return &ChainReader{rpc: rpc, programID: programID}
}

// Compile-time interface check.
var _ ledger.Reader = (*ChainReader)(nil)

// FetchPlan reads the plan account and its vault balance.
// Returns storage.ErrNotFound if the account does not exist and an error
// wrapping domain.ErrInvalidPlanConfiguration if its swap terms are unusable.
func (r *ChainReader) FetchPlan(ctx context.Context, id domain.PlanID) (*domain.PlanSnapshot, error) {
	info, err := r.rpc.GetAccountInfo(ctx, string(id))
	if err != nil {
		return nil, fmt.Errorf("get plan account %s: %w", id, err)
	}
	if info == nil {
		return nil, storage.ErrNotFound
	}
	if info.Owner != r.programID.String() {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrNotPlanAccount, id, info.Owner)
	}

	plan, _, err := DecodePlanAccountBase64(id, info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	if err := domain.ValidateTerms(plan.AmountPerSwap, plan.IntervalSeconds); err != nil {
		return nil, fmt.Errorf("plan %s: %w", id, err)
	}

	planKey, err := ParsePubkey(string(id))
	if err != nil {
		return nil, err
	}
	vault, err := VaultAddress(r.programID, planKey)
	if err != nil {
		return nil, fmt.Errorf("derive vault for %s: %w", id, err)
	}

	balance, err := r.rpc.GetTokenAccountBalance(ctx, vault.String())
	if err != nil {
		return nil, fmt.Errorf("get vault balance %s: %w", vault, err)
	}

	return &domain.PlanSnapshot{Plan: *plan, FromBalance: balance.Amount}, nil
}

// ListPlans returns the addresses of all plan accounts, ordered by ID.
func (r *ChainReader) ListPlans(ctx context.Context) ([]domain.PlanID, error) {
	accounts, err := r.rpc.GetProgramAccounts(ctx, r.programID.String(), &ProgramAccountsOpts{
		DataSize: PlanAccountSize,
		Memcmp:   []MemcmpFilter{PlanDiscriminatorFilter()},
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", err)
	}

	ids := make([]domain.PlanID, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, domain.PlanID(a.Pubkey))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
