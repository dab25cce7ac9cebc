package domain

import (
	"errors"
	"testing"
)

const (
	testOwner = "Vote111111111111111111111111111111111111111"
	testUSDC  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testWSOL  = "So11111111111111111111111111111111111111112"
)

func validParams() PlanParams {
	return PlanParams{
		Owner:           testOwner,
		FromMint:        testUSDC,
		ToMint:          testWSOL,
		AmountPerSwap:   20,
		IntervalSeconds: 600,
	}
}

func TestValidatePlanParams_Valid(t *testing.T) {
	if err := ValidatePlanParams(validParams()); err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}
}

func TestValidatePlanParams_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *PlanParams)
	}{
		{"zero amount", func(p *PlanParams) { p.AmountPerSwap = 0 }},
		{"zero interval", func(p *PlanParams) { p.IntervalSeconds = 0 }},
		{"negative interval", func(p *PlanParams) { p.IntervalSeconds = -600 }},
		{"interval below minimum", func(p *PlanParams) { p.IntervalSeconds = MinIntervalSeconds - 1 }},
		{"empty owner", func(p *PlanParams) { p.Owner = "" }},
		{"bad base58 mint", func(p *PlanParams) { p.FromMint = "0OIl" }},
		{"short mint", func(p *PlanParams) { p.ToMint = "abc" }},
		{"same mints", func(p *PlanParams) { p.ToMint = p.FromMint }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			err := ValidatePlanParams(p)
			if !errors.Is(err, ErrInvalidPlanConfiguration) {
				t.Errorf("expected ErrInvalidPlanConfiguration, got %v", err)
			}
		})
	}
}

func TestValidateTerms(t *testing.T) {
	if err := ValidateTerms(1, MinIntervalSeconds); err != nil {
		t.Fatalf("minimum terms rejected: %v", err)
	}
	for _, tt := range []struct {
		amount   uint64
		interval int64
	}{
		{0, 600},
		{10, 0},
		{10, -1},
		{10, MinIntervalSeconds - 1},
	} {
		if err := ValidateTerms(tt.amount, tt.interval); !errors.Is(err, ErrInvalidPlanConfiguration) {
			t.Errorf("ValidateTerms(%d, %d) = %v, want ErrInvalidPlanConfiguration", tt.amount, tt.interval, err)
		}
	}
}
