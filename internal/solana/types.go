package solana

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// KeyedAccount is an account together with its address, as returned by
// getProgramAccounts.
type KeyedAccount struct {
	Pubkey  string
	Account AccountInfo
}

// ProgramAccountsOpts defines optional filters for getProgramAccounts.
type ProgramAccountsOpts struct {
	DataSize uint64         // Exact account data length, 0 for any
	Memcmp   []MemcmpFilter // All filters must match
}

// MemcmpFilter matches account data bytes at Offset.
type MemcmpFilter struct {
	Offset uint64
	Bytes  string // base58 encoded
}

// TokenAmount is an SPL token balance in base units.
type TokenAmount struct {
	Amount         uint64
	Decimals       uint8
	UIAmountString string
}
