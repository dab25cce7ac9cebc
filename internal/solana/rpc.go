package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used to read plan state.
type RPCClient interface {
	// GetAccountInfo retrieves an account by address. Returns nil if the
	// account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetProgramAccounts retrieves all accounts owned by programID that
	// match opts.
	GetProgramAccounts(ctx context.Context, programID string, opts *ProgramAccountsOpts) ([]KeyedAccount, error)

	// GetTokenAccountBalance retrieves the balance of an SPL token account.
	GetTokenAccountBalance(ctx context.Context, account string) (*TokenAmount, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)

	// GetBlockTime retrieves the estimated production time of a block.
	// Returns nil if the time is not available.
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)
}
