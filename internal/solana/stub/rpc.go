// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"

	"solana-ddca/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu            sync.RWMutex
	Accounts      map[string]*solana.AccountInfo
	TokenBalances map[string]uint64
	Slot          int64
	BlockTimes    map[int64]int64
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:      make(map[string]*solana.AccountInfo),
		TokenBalances: make(map[string]uint64),
		BlockTimes:    make(map[int64]int64),
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	accountCopy := *a
	return &accountCopy, nil
}

// GetProgramAccounts returns stored accounts owned by programID whose data
// satisfies the DataSize filter. Memcmp filters are not evaluated.
func (c *RPCClient) GetProgramAccounts(_ context.Context, programID string, opts *solana.ProgramAccountsOpts) ([]solana.KeyedAccount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []solana.KeyedAccount
	for pubkey, a := range c.Accounts {
		if a.Owner != programID {
			continue
		}
		if opts != nil && opts.DataSize > 0 {
			raw, err := base64.StdEncoding.DecodeString(a.Data)
			if err != nil || uint64(len(raw)) != opts.DataSize {
				continue
			}
		}
		result = append(result, solana.KeyedAccount{Pubkey: pubkey, Account: *a})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Pubkey < result[j].Pubkey })
	return result, nil
}

// GetTokenAccountBalance returns the stored balance.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, account string) (*solana.TokenAmount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bal, ok := c.TokenBalances[account]
	if !ok {
		return nil, fmt.Errorf("token account %s not found", account)
	}
	return &solana.TokenAmount{Amount: bal}, nil
}

// GetSlot returns the stored slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Slot, nil
}

// GetBlockTime returns the stored block time or nil.
func (c *RPCClient) GetBlockTime(_ context.Context, slot int64) (*int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ts, ok := c.BlockTimes[slot]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

// SetAccount stores raw account data owned by owner.
func (c *RPCClient) SetAccount(pubkey, owner string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = &solana.AccountInfo{
		Owner: owner,
		Data:  base64.StdEncoding.EncodeToString(data),
	}
}

// SetTokenBalance stores a token account balance.
func (c *RPCClient) SetTokenBalance(account string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenBalances[account] = amount
}

// SetClock sets the current slot and its block time.
func (c *RPCClient) SetClock(slot, blockTime int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Slot = slot
	c.BlockTimes[slot] = blockTime
}
