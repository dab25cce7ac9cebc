package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"solana-ddca/internal/config"
	"solana-ddca/internal/ledger"
	"solana-ddca/internal/ledger/memory"
	"solana-ddca/internal/solana"
	"solana-ddca/internal/storage"
	chstore "solana-ddca/internal/storage/clickhouse"
	memstore "solana-ddca/internal/storage/memory"
	pgstore "solana-ddca/internal/storage/postgres"
)

// backend is the set of collaborators opened for one plan source.
type backend struct {
	source    string
	programID solana.Pubkey
	reader    ledger.Reader
	ledger    ledger.Ledger // nil for the chain source
	clock     ledger.Clock
	history   storage.ExecutionStore // queryable execution history, may be nil
	sinks     []storage.ExecutionStore
	closers   []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend connects to the plan source named in c.Waker.Source.
// ClickHouse, when configured, is added as an execution history sink.
func openBackend(ctx context.Context, c *config.Config, log zerolog.Logger) (*backend, error) {
	source := c.Waker.Source
	if err := c.RequireSource(source); err != nil {
		return nil, err
	}
	programID, err := c.ProgramPubkey()
	if err != nil {
		return nil, fmt.Errorf("solana.program_id: %w", err)
	}

	b := &backend{source: source, programID: programID}

	switch source {
	case config.SourceChain:
		rpc, err := newRPCClient(c)
		if err != nil {
			return nil, err
		}
		b.reader = solana.NewChainReader(rpc, programID)
		b.clock = solana.NewClusterClock(rpc)

	case config.SourcePostgres:
		pool, err := pgstore.NewPool(ctx, c.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.clock = ledger.SystemClock{}
		pl := pgstore.NewPlanLedger(pool, b.clock, programID)
		b.reader, b.ledger = pl, pl
		// The ledger writes executions in its own transaction.
		b.history = pgstore.NewExecutionStore(pool)

	case config.SourceMemory:
		b.clock = ledger.SystemClock{}
		ml := memory.NewLedger(b.clock, programID)
		if err := seedPlans(ctx, ml, c.Plans, log); err != nil {
			return nil, err
		}
		b.reader, b.ledger = ml, ml
		mem := memstore.NewExecutionStore()
		b.history = mem
		b.sinks = append(b.sinks, mem)
	}

	if c.ClickHouse.DSN != "" {
		conn, err := chstore.NewConn(ctx, c.ClickHouse.DSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = conn.Close() })
		ch := chstore.NewExecutionStore(conn)
		b.sinks = append(b.sinks, ch)
		if b.history == nil {
			b.history = ch
		}
	}

	log.Info().
		Str("source", source).
		Str("program_id", programID.String()).
		Bool("clickhouse", c.ClickHouse.DSN != "").
		Msg("backend opened")
	return b, nil
}

// seedPlans creates the configured plans in l through the ledger
// instruction path.
func seedPlans(ctx context.Context, l ledger.Ledger, seeds []config.PlanSeed, log zerolog.Logger) error {
	for i, seed := range seeds {
		params, err := seed.Params()
		if err != nil {
			return fmt.Errorf("plans[%d]: %w", i, err)
		}
		out, err := ledger.Apply(ctx, l, ledger.Instruction{Op: ledger.OpCreate, Params: params})
		if err != nil {
			return fmt.Errorf("seed plans[%d]: %w", i, err)
		}
		log.Info().
			Str("plan_id", string(out.PlanID)).
			Int64("interval_s", params.IntervalSeconds).
			Uint64("deposit", params.InitialDeposit).
			Msg("plan seeded")
	}
	return nil
}

func newRPCClient(c *config.Config) (*solana.HTTPClient, error) {
	timeout, err := c.Solana.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	opts := []solana.ClientOption{solana.WithTimeout(timeout)}
	if c.Solana.RateLimitRPS > 0 {
		opts = append(opts, solana.WithRateLimit(c.Solana.RateLimitRPS, c.Solana.RateBurst))
	}
	return solana.NewHTTPClient(c.Solana.RPCURL, opts...), nil
}
