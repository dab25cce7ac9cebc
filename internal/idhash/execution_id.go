package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-ddca/internal/domain"
)

// ComputeExecutionID computes a deterministic execution_id using SHA256.
// Formula: SHA256(plan_id|checkpoint_ts)
// Returns hex-encoded hash (64 characters). A checkpoint can be executed at
// most once per plan, so the pair is a natural key.
func ComputeExecutionID(planID domain.PlanID, checkpointTs int64) string {
	data := fmt.Sprintf("%s|%d", planID, checkpointTs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
