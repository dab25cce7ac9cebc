package solana

import (
	"context"
	"fmt"
)

// ClusterClock reads the cluster's notion of now: the block time of the
// latest confirmed slot. This is the time the on-chain program sees, so the
// waker reconciles against it rather than the local wall clock.
type ClusterClock struct {
	rpc RPCClient
}

// NewClusterClock creates a new ClusterClock.
func NewClusterClock(rpc RPCClient) *ClusterClock {
	return &ClusterClock{rpc: rpc}
}

// Now returns the block time of the current slot in Unix seconds.
func (c *ClusterClock) Now(ctx context.Context) (int64, error) {
	slot, err := c.rpc.GetSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	ts, err := c.rpc.GetBlockTime(ctx, slot)
	if err != nil {
		return 0, fmt.Errorf("get block time for slot %d: %w", slot, err)
	}
	if ts == nil {
		return 0, fmt.Errorf("block time unavailable for slot %d", slot)
	}
	return *ts, nil
}
