package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// MinIntervalSeconds is the protocol minimum swap interval.
// Below roughly 12s the drift windows of adjacent checkpoints would overlap.
const MinIntervalSeconds int64 = 300

// PlanID is the base58 address of a plan account.
type PlanID string

// Plan is the durable state of one DDCA schedule.
// Corresponds to ddca_plans table in PostgreSQL and to the on-chain plan account.
type Plan struct {
	ID                         PlanID
	Owner                      string // base58 owner pubkey
	FromMint                   string // base58 mint swapped from, immutable
	ToMint                     string // base58 mint swapped to, immutable
	AmountPerSwap              uint64 // smallest units per swap, immutable
	IntervalSeconds            int64  // seconds between checkpoints, immutable
	StartTimestamp             int64  // checkpoint zero (Unix seconds), immutable
	LastCompletedSwapTimestamp int64  // 0 or a checkpoint
	TotalDepositedAmount       uint64 // cumulative deposits
	IsPaused                   bool
}

// PlanSnapshot is a plan together with the balance of its from-token vault.
// FromBalance is not part of the plan record; it is read from the vault.
type PlanSnapshot struct {
	Plan
	FromBalance uint64
}

// PlanParams are the inputs for creating a plan.
type PlanParams struct {
	Owner           string
	FromMint        string
	ToMint          string
	AmountPerSwap   uint64
	IntervalSeconds int64
	InitialDeposit  uint64
}

// ValidatePlanParams rejects configurations that can never form a valid plan.
// Returns an error wrapping ErrInvalidPlanConfiguration.
func ValidatePlanParams(p PlanParams) error {
	if err := ValidateTerms(p.AmountPerSwap, p.IntervalSeconds); err != nil {
		return err
	}
	for _, f := range []struct {
		name, value string
	}{
		{"owner", p.Owner},
		{"from mint", p.FromMint},
		{"to mint", p.ToMint},
	} {
		if err := validateAddress(f.value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPlanConfiguration, f.name, err)
		}
	}
	if p.FromMint == p.ToMint {
		return fmt.Errorf("%w: from and to mint are identical", ErrInvalidPlanConfiguration)
	}
	return nil
}

// ValidateTerms checks the immutable swap terms of a plan. Plans read from
// outside the ledgers, such as decoded accounts, go through it before they
// are reconciled. Returns an error wrapping ErrInvalidPlanConfiguration.
func ValidateTerms(amountPerSwap uint64, intervalSeconds int64) error {
	if amountPerSwap == 0 {
		return fmt.Errorf("%w: amount per swap must be positive", ErrInvalidPlanConfiguration)
	}
	if intervalSeconds <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidPlanConfiguration, intervalSeconds)
	}
	if intervalSeconds < MinIntervalSeconds {
		return fmt.Errorf("%w: interval %ds below minimum %ds",
			ErrInvalidPlanConfiguration, intervalSeconds, MinIntervalSeconds)
	}
	return nil
}

// validateAddress checks that s is a base58-encoded 32-byte key.
func validateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("empty address")
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("decode base58: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("address must be 32 bytes, got %d", len(decoded))
	}
	return nil
}
