package governance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"deposit-governance/internal/governance"
	"deposit-governance/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newRapidEngine(t *rapid.T, limit int64, ledger *fakeLedger, clock *fakeClock, members ...string) *governance.Engine {
	params := testParams()
	params.DepositLimit = decimal.NewFromInt(limit)

	engine, err := governance.NewEngine(
		context.Background(),
		params,
		ledger,
		governance.NewStaticRegistry(members...),
		governance.NewMemoryStore(),
		governance.WithClock(clock),
	)
	require.NoError(t, err)
	return engine
}

// Property: deposit total never exceeds the limit and approval flips exactly when it is reached
func TestPropertyDepositNeverExceedsLimit(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		limit := rapid.Int64Range(1, 1000).Draw(t, "limit")
		depositors := []string{alice, bob, carol}

		ledger := newFakeLedger(map[string]int64{alice: 1_000_000, bob: 1_000_000, carol: 1_000_000})
		clock := &fakeClock{now: t0}
		engine := newRapidEngine(t, limit, ledger, clock, depositors...)

		id, err := engine.CreateProposal(ctx, alice, "property")
		require.NoError(t, err)

		var sum int64
		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			who := rapid.SampledFrom(depositors).Draw(t, "depositor")
			amt := rapid.Int64Range(1, limit).Draw(t, "amount")

			require.NoError(t, engine.DepositForProposal(ctx, who, id, decimal.NewFromInt(amt)))
			sum += amt

			p, err := engine.Proposal(id)
			require.NoError(t, err)

			assert.True(t, p.DepositTotal.LessThanOrEqual(decimal.NewFromInt(limit)))
			expected := sum
			if expected > limit {
				expected = limit
			}
			assert.True(t, p.DepositTotal.Equal(decimal.NewFromInt(expected)),
				"total %s, expected %d", p.DepositTotal, expected)
			assert.Equal(t, sum >= limit, p.Status == models.ProposalStatusApproved)
		}
	})
}

// Property: a non-whitelisted identity never succeeds at create, deposit or vote
func TestPropertyOutsiderAlwaysRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		ledger := newFakeLedger(map[string]int64{alice: 1000})
		ledger.set(mallory, rapid.Int64Range(0, 1000).Draw(t, "outsider_balance"))
		clock := &fakeClock{now: t0}
		engine := newRapidEngine(t, 100, ledger, clock, alice)

		id, err := engine.CreateProposal(ctx, alice, "insiders only")
		require.NoError(t, err)

		offset := time.Duration(rapid.Int64Range(0, int64(3*time.Hour)).Draw(t, "offset"))
		clock.Set(t0.Add(offset))

		var opErr error
		switch rapid.IntRange(0, 2).Draw(t, "op") {
		case 0:
			_, opErr = engine.CreateProposal(ctx, mallory, "outsider")
		case 1:
			opErr = engine.DepositForProposal(ctx, mallory, id, decimal.NewFromInt(rapid.Int64Range(1, 100).Draw(t, "amount")))
		case 2:
			opErr = engine.Vote(ctx, mallory, id, rapid.Bool().Draw(t, "approval"))
		}

		assert.True(t, errors.Is(opErr, governance.ErrUnauthorized), "got %v", opErr)
		assert.Equal(t, uint64(1), engine.ProposalCount())
	})
}

// Property: finalization approves iff approval weight strictly exceeds denial weight,
// and only denial burns the deposit, exactly once.
func TestPropertyFinalizeTally(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		voters := []string{alice, bob, carol}

		ledger := newFakeLedger(map[string]int64{alice: 1000})
		clock := &fakeClock{now: t0}
		engine := newRapidEngine(t, 100, ledger, clock, voters...)

		id, err := engine.CreateProposal(ctx, alice, "tally")
		require.NoError(t, err)
		deposit := rapid.Int64Range(1, 100).Draw(t, "deposit")
		require.NoError(t, engine.DepositForProposal(ctx, alice, id, decimal.NewFromInt(deposit)))

		clock.Set(t0.Add(time.Hour))

		var approve, deny int64
		for _, voter := range voters {
			weight := rapid.Int64Range(1, 50).Draw(t, "weight")
			ledger.set(voter, weight)
			approval := rapid.Bool().Draw(t, "approval")
			require.NoError(t, engine.Vote(ctx, voter, id, approval))
			if approval {
				approve += weight
			} else {
				deny += weight
			}
		}

		require.NoError(t, engine.FinalizeProposal(ctx, admin, id))
		p, err := engine.Proposal(id)
		require.NoError(t, err)

		if approve > deny {
			assert.Equal(t, models.ProposalStatusApproved, p.Status)
			assert.Empty(t, ledger.transfersTo(burn))
		} else {
			assert.Equal(t, models.ProposalStatusDenied, p.Status)
			burned := ledger.transfersTo(burn)
			require.Len(t, burned, 1)
			assert.True(t, burned[0].Amount.Equal(p.DepositTotal))
		}
	})
}
