package domain

// SwapResult is what the external swap executor reports for one swap.
type SwapResult struct {
	AmountIn    uint64 // from-token amount spent
	AmountOut   uint64 // to-token amount received
	TxSignature string // Solana transaction signature, empty for simulated swaps
}

// SwapExecution is one completed, checkpoint-aligned swap of a plan.
// Corresponds to ddca_swap_executions table.
type SwapExecution struct {
	ExecutionID  string `json:"execution_id"`  // SHA256(plan_id|checkpoint_ts), hex
	PlanID       PlanID `json:"plan_id"`
	CheckpointTs int64  `json:"checkpoint_ts"` // the checkpoint written to LastCompletedSwapTimestamp
	AmountIn     uint64 `json:"amount_in"`
	AmountOut    uint64 `json:"amount_out"`
	TxSignature  string `json:"tx_signature,omitempty"`
	ExecutedAt   int64  `json:"executed_at"` // ledger clock at execution (Unix seconds)
}
