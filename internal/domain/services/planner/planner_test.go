package planner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

const destination = "UQDestination0000000000000000000000000000000000"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockEstimator struct {
	mock.Mock
}

func (m *mockEstimator) Estimate(ctx context.Context, messages []entities.TransferMessage) (decimal.Decimal, error) {
	args := m.Called(len(messages))
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func fixedFee(fee string) FeeEstimator {
	return func(ctx context.Context, messages []entities.TransferMessage) (decimal.Decimal, error) {
		return d(fee), nil
	}
}

func failingFee() FeeEstimator {
	return func(ctx context.Context, messages []entities.TransferMessage) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("estimate endpoint down")
	}
}

func holding(symbol string, atomic int64, usd string) entities.PricedHolding {
	return entities.PricedHolding{
		Holding: entities.Holding{
			OwnerAddress:  "EQSource",
			TokenAddress:  "EQMaster" + symbol,
			WalletAddress: "EQWallet" + symbol,
			AtomicBalance: big.NewInt(atomic),
			Decimals:      0,
			Symbol:        symbol,
		},
		USDValue: d(usd),
	}
}

func scenarioConfig() Config {
	return Config{
		MinTriggerThreshold: d("0.004"),
		JettonGasAmount:     d("0.15"),
		ForwardAmount:       d("0.05"),
		SafetyMargin:        d("0.01"),
		DustThreshold:       d("0.001"),
	}
}

func assertNoOverdraw(t *testing.T, cfg Config, balance decimal.Decimal, plan *entities.TransferPlan) {
	t.Helper()
	if plan.IsEmpty() {
		return
	}
	committed := plan.TotalAttached().Add(plan.EstimatedFee).Add(cfg.SafetyMargin)
	assert.True(t, committed.LessThanOrEqual(balance),
		"committed %s exceeds balance %s", committed, balance)
	assert.False(t, plan.Remainder.IsNegative())
}

func TestPlan_TokenWithRemainder(t *testing.T) {
	cfg := scenarioConfig()
	p := NewPlanner(cfg, logger.NewNop())

	plan := p.Plan(context.Background(), d("0.5"), []entities.PricedHolding{holding("JET", 10, "20")}, fixedFee("0.01"), destination)

	require.Len(t, plan.Messages, 2)
	assert.Equal(t, entities.PlanReasonTokenBatch, plan.Reason)

	token := plan.Messages[0]
	assert.True(t, token.IsJetton())
	assert.Equal(t, "EQWalletJET", token.Destination)
	assert.True(t, d("0.15").Equal(token.AttachedNative))
	assert.Equal(t, big.NewInt(10), token.Payload.Amount)
	assert.Equal(t, destination, token.Payload.Destination)
	assert.True(t, d("0.05").Equal(token.Payload.ForwardAmount))
	assert.True(t, token.Bounce)

	remainder := plan.Messages[1]
	assert.False(t, remainder.IsJetton())
	assert.Equal(t, destination, remainder.Destination)
	assert.True(t, d("0.33").Equal(remainder.AttachedNative), remainder.AttachedNative.String())
	assert.False(t, remainder.Bounce)
	assert.True(t, d("0.33").Equal(plan.Remainder))
	assert.True(t, plan.FeeEstimated)

	assertNoOverdraw(t, cfg, d("0.5"), plan)
}

func TestPlan_BelowThresholdIsEmpty(t *testing.T) {
	p := NewPlanner(scenarioConfig(), logger.NewNop())
	est := &mockEstimator{}

	plan := p.Plan(context.Background(), d("0.002"), []entities.PricedHolding{holding("JET", 10, "20")}, est.Estimate, destination)

	assert.True(t, plan.IsEmpty())
	assert.True(t, plan.Remainder.IsZero())
	assert.Equal(t, entities.PlanReasonBelowThreshold, plan.Reason)
	est.AssertNotCalled(t, "Estimate", mock.Anything)
}

func TestPlan_ZeroHoldingsFallsBackToNativeOnly(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPlanner(cfg, logger.NewNop())
	est := &mockEstimator{}
	est.On("Estimate", 1).Return(d("0.0055"), nil).Once()

	plan := p.Plan(context.Background(), d("1.2"), nil, est.Estimate, destination)

	require.Len(t, plan.Messages, 1)
	assert.Equal(t, entities.PlanReasonNativeOnly, plan.Reason)
	assert.False(t, plan.Messages[0].IsJetton())
	// balance - fee - dust
	assert.True(t, d("1.1745").Equal(plan.Messages[0].AttachedNative), plan.Messages[0].AttachedNative.String())
	est.AssertExpectations(t)
	assertNoOverdraw(t, cfg, d("1.2"), plan)
}

func TestPlan_NativeOnlyEstimatesTheRealMessageShape(t *testing.T) {
	p := NewPlanner(DefaultConfig(), logger.NewNop())

	var seen []entities.TransferMessage
	est := func(ctx context.Context, messages []entities.TransferMessage) (decimal.Decimal, error) {
		seen = messages
		return d("0.004"), nil
	}

	p.Plan(context.Background(), d("0.5"), nil, est, destination)

	require.Len(t, seen, 1)
	assert.Equal(t, destination, seen[0].Destination)
	assert.True(t, d("0.48").Equal(seen[0].AttachedNative))
}

func TestPlan_NativeOnlyNothingNetPositive(t *testing.T) {
	p := NewPlanner(DefaultConfig(), logger.NewNop())

	plan := p.Plan(context.Background(), d("0.05"), nil, fixedFee("0.04"), destination)

	assert.True(t, plan.IsEmpty())
	assert.Equal(t, entities.PlanReasonNothingPositive, plan.Reason)
	assert.True(t, plan.Remainder.IsZero())
}

func TestPlan_EstimatorFailureUsesSafetyMargin(t *testing.T) {
	cfg := scenarioConfig()
	p := NewPlanner(cfg, logger.NewNop())

	plan := p.Plan(context.Background(), d("0.5"), []entities.PricedHolding{holding("JET", 10, "20")}, failingFee(), destination)

	require.Len(t, plan.Messages, 2)
	assert.False(t, plan.FeeEstimated)
	assert.True(t, cfg.SafetyMargin.Equal(plan.EstimatedFee))
	assert.True(t, d("0.33").Equal(plan.Remainder))
	assertNoOverdraw(t, cfg, d("0.5"), plan)
}

func TestPlan_UnknownPriceHoldingIsStillDrained(t *testing.T) {
	cfg := scenarioConfig()
	p := NewPlanner(cfg, logger.NewNop())
	ranked := []entities.PricedHolding{
		holding("USDT", 5, "5"),
		holding("MYSTERY", 1000, "0"),
	}

	plan := p.Plan(context.Background(), d("1"), ranked, fixedFee("0.02"), destination)

	require.Equal(t, 2, plan.TokenMessageCount())
	assert.Equal(t, "USDT", plan.Messages[0].Symbol)
	assert.Equal(t, "MYSTERY", plan.Messages[1].Symbol)
	assertNoOverdraw(t, cfg, d("1"), plan)
}

func TestPlan_DefersLowestRankedWhenGasIsShort(t *testing.T) {
	cfg := scenarioConfig()
	p := NewPlanner(cfg, logger.NewNop())
	ranked := []entities.PricedHolding{
		holding("A", 1, "30"),
		holding("B", 1, "20"),
		holding("C", 1, "10"),
	}

	// 0.2 covers one attachment plus margin, not two
	plan := p.Plan(context.Background(), d("0.2"), ranked, fixedFee("0.02"), destination)

	assert.Equal(t, 1, plan.TokenMessageCount())
	assert.Equal(t, "A", plan.Messages[0].Symbol)
	require.Len(t, plan.Deferred, 2)
	assert.Equal(t, "B", plan.Deferred[0].Symbol)
	assert.Equal(t, "C", plan.Deferred[1].Symbol)
	assert.True(t, d("0.02").Equal(plan.Remainder))
	assertNoOverdraw(t, cfg, d("0.2"), plan)
}

func TestPlan_DropsTokensUntilFeeFits(t *testing.T) {
	cfg := scenarioConfig()
	p := NewPlanner(cfg, logger.NewNop())
	est := &mockEstimator{}
	est.On("Estimate", 2).Return(d("0.05"), nil).Once()
	est.On("Estimate", 1).Return(d("0.02"), nil).Once()

	ranked := []entities.PricedHolding{holding("A", 1, "30"), holding("B", 1, "20")}
	plan := p.Plan(context.Background(), d("0.32"), ranked, est.Estimate, destination)

	assert.Equal(t, 1, plan.TokenMessageCount())
	assert.Equal(t, "A", plan.Messages[0].Symbol)
	require.Len(t, plan.Deferred, 1)
	assert.Equal(t, "B", plan.Deferred[0].Symbol)
	est.AssertExpectations(t)
	assertNoOverdraw(t, cfg, d("0.32"), plan)
}

func TestPlan_RemainderBelowDustIsOmitted(t *testing.T) {
	cfg := scenarioConfig()
	p := NewPlanner(cfg, logger.NewNop())

	plan := p.Plan(context.Background(), d("0.1705"), []entities.PricedHolding{holding("JET", 1, "1")}, fixedFee("0.01"), destination)

	require.Len(t, plan.Messages, 1)
	assert.True(t, plan.Messages[0].IsJetton())
	assert.True(t, plan.Remainder.IsZero())
	assertNoOverdraw(t, cfg, d("0.1705"), plan)
}

func TestPlan_SkipsZeroBalanceHoldings(t *testing.T) {
	p := NewPlanner(scenarioConfig(), logger.NewNop())

	plan := p.Plan(context.Background(), d("0.5"), []entities.PricedHolding{holding("ZERO", 0, "0")}, fixedFee("0.01"), destination)

	assert.Equal(t, entities.PlanReasonNativeOnly, plan.Reason)
	assert.Equal(t, 0, plan.TokenMessageCount())
}

func TestPlan_NeverOverdraws(t *testing.T) {
	cfg := scenarioConfig()
	p := NewPlanner(cfg, logger.NewNop())

	balances := []string{"0.004", "0.01", "0.0215", "0.05", "0.17", "0.33", "0.5", "0.999999999", "3", "25.123456789"}
	fees := []FeeEstimator{fixedFee("0"), fixedFee("0.003"), fixedFee("0.05"), fixedFee("0.4"), fixedFee("10"), failingFee()}

	for _, b := range balances {
		for fi, fee := range fees {
			for n := 0; n <= 5; n++ {
				ranked := make([]entities.PricedHolding, 0, n)
				for i := 0; i < n; i++ {
					ranked = append(ranked, holding(fmt.Sprintf("T%d", i), int64(i+1), "1"))
				}
				name := fmt.Sprintf("balance=%s/fee=%d/holdings=%d", b, fi, n)
				t.Run(name, func(t *testing.T) {
					plan := p.Plan(context.Background(), d(b), ranked, fee, destination)
					assertNoOverdraw(t, cfg, d(b), plan)
					if plan.Reason != entities.PlanReasonBelowThreshold {
						// every holding is either sent now or deferred
						assert.Equal(t, n, plan.TokenMessageCount()+len(plan.Deferred))
					}
				})
			}
		}
	}
}
