// Package planner turns a native balance and a ranked set of holdings into a
// single batched transfer that never commits more than the balance holds.
package planner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

// FeeEstimator returns the network fee of sending messages as one batch.
type FeeEstimator func(ctx context.Context, messages []entities.TransferMessage) (decimal.Decimal, error)

// Config holds the amounts the planner reserves and attaches, in whole coins.
type Config struct {
	MinTriggerThreshold decimal.Decimal
	JettonGasAmount     decimal.Decimal
	ForwardAmount       decimal.Decimal
	SafetyMargin        decimal.Decimal
	DustThreshold       decimal.Decimal
}

// DefaultConfig mirrors the thresholds the sweeper has always run with.
func DefaultConfig() Config {
	return Config{
		MinTriggerThreshold: decimal.RequireFromString("0.05"),
		JettonGasAmount:     decimal.RequireFromString("0.05"),
		ForwardAmount:       decimal.RequireFromString("0.01"),
		SafetyMargin:        decimal.RequireFromString("0.01"),
		DustThreshold:       decimal.RequireFromString("0.02"),
	}
}

// nativeReserve is what the native-only branch leaves behind.
func (c Config) nativeReserve() decimal.Decimal {
	return decimal.Max(c.DustThreshold, c.SafetyMargin)
}

type Planner struct {
	config Config
	logger *logger.Logger
	now    func() time.Time
}

func NewPlanner(config Config, log *logger.Logger) *Planner {
	return &Planner{
		config: config,
		logger: log,
		now:    time.Now,
	}
}

// Config returns the planner's amounts.
func (p *Planner) Config() Config {
	return p.config
}

// Plan builds the transfer for one drain. The only side effect is the
// estimator call; holdings that cannot be paid for are returned in Deferred.
func (p *Planner) Plan(
	ctx context.Context,
	nativeBalance decimal.Decimal,
	ranked []entities.PricedHolding,
	estimate FeeEstimator,
	destination string,
) *entities.TransferPlan {
	if nativeBalance.LessThan(p.config.MinTriggerThreshold) {
		return &entities.TransferPlan{Reason: entities.PlanReasonBelowThreshold}
	}

	var (
		messages []entities.TransferMessage
		included []entities.PricedHolding
		deferred []entities.PricedHolding
		attached = decimal.Zero
		baseID   = uint64(p.now().UnixMilli()) * 1000
	)

	for _, h := range ranked {
		if !h.HasBalance() {
			continue
		}
		next := attached.Add(p.config.JettonGasAmount)
		if next.Add(p.config.SafetyMargin).GreaterThan(nativeBalance) {
			deferred = append(deferred, h)
			continue
		}
		attached = next
		included = append(included, h)
		messages = append(messages, p.jettonMessage(h, destination, baseID+uint64(len(messages))))
	}

	if len(messages) == 0 {
		plan := p.nativeOnly(ctx, nativeBalance, estimate, destination)
		if len(deferred) > 0 {
			p.logDeferred(deferred, nativeBalance)
			plan.Deferred = deferred
		}
		return plan
	}

	var (
		fee       decimal.Decimal
		estimated bool
	)
	for len(messages) > 0 {
		fee, estimated = p.estimateFee(ctx, estimate, messages)
		if attached.Add(fee).Add(p.config.SafetyMargin).LessThanOrEqual(nativeBalance) {
			break
		}
		// Lowest ranked token goes back to the next drain.
		last := len(messages) - 1
		deferred = append([]entities.PricedHolding{included[last]}, deferred...)
		messages = messages[:last]
		included = included[:last]
		attached = attached.Sub(p.config.JettonGasAmount)
	}

	if len(messages) == 0 {
		p.logDeferred(deferred, nativeBalance)
		plan := p.nativeOnly(ctx, nativeBalance, estimate, destination)
		plan.Deferred = deferred
		return plan
	}
	if len(deferred) > 0 {
		p.logDeferred(deferred, nativeBalance)
	}

	plan := &entities.TransferPlan{
		EstimatedFee: fee,
		FeeEstimated: estimated,
		Deferred:     deferred,
		Reason:       entities.PlanReasonTokenBatch,
	}

	remainder := entities.TruncateNative(nativeBalance.Sub(attached).Sub(fee).Sub(p.config.SafetyMargin))
	if remainder.GreaterThan(p.config.DustThreshold) {
		messages = append(messages, entities.TransferMessage{
			Destination:    destination,
			AttachedNative: remainder,
			Bounce:         false,
		})
		plan.Remainder = remainder
	} else {
		plan.Remainder = decimal.Zero
	}
	plan.Messages = messages
	return plan
}

// nativeOnly sweeps the coin alone: estimate the real message shape first,
// then send exactly what is left after fee and reserve.
func (p *Planner) nativeOnly(
	ctx context.Context,
	nativeBalance decimal.Decimal,
	estimate FeeEstimator,
	destination string,
) *entities.TransferPlan {
	reserve := p.config.nativeReserve()
	probe := entities.TruncateNative(nativeBalance.Sub(reserve))
	if !probe.IsPositive() {
		return &entities.TransferPlan{Reason: entities.PlanReasonNothingPositive}
	}

	probeMsg := entities.TransferMessage{Destination: destination, AttachedNative: probe}
	fee, estimated := p.estimateFee(ctx, estimate, []entities.TransferMessage{probeMsg})

	amount := entities.TruncateNative(nativeBalance.Sub(fee).Sub(reserve))
	if !amount.IsPositive() {
		p.logger.Info("Native balance does not cover fee and reserve",
			"balance", nativeBalance.String(),
			"fee", fee.String(),
			"reserve", reserve.String())
		return &entities.TransferPlan{
			EstimatedFee: fee,
			FeeEstimated: estimated,
			Reason:       entities.PlanReasonNothingPositive,
		}
	}

	return &entities.TransferPlan{
		Messages: []entities.TransferMessage{{
			Destination:    destination,
			AttachedNative: amount,
			Bounce:         false,
		}},
		Remainder:    amount,
		EstimatedFee: fee,
		FeeEstimated: estimated,
		Reason:       entities.PlanReasonNativeOnly,
	}
}

// estimateFee falls back to the safety margin when the estimator fails or
// returns nonsense.
func (p *Planner) estimateFee(ctx context.Context, estimate FeeEstimator, messages []entities.TransferMessage) (decimal.Decimal, bool) {
	if estimate == nil {
		return p.config.SafetyMargin, false
	}
	fee, err := estimate(ctx, messages)
	if err != nil {
		p.logger.Warn("Fee estimation failed, using safety margin",
			"messages", len(messages),
			"fallback_fee", p.config.SafetyMargin.String(),
			"error", err)
		return p.config.SafetyMargin, false
	}
	if fee.IsNegative() {
		p.logger.Warn("Fee estimator returned a negative fee, using safety margin",
			"fee", fee.String())
		return p.config.SafetyMargin, false
	}
	return fee, true
}

func (p *Planner) jettonMessage(h entities.PricedHolding, destination string, queryID uint64) entities.TransferMessage {
	return entities.TransferMessage{
		Destination:    h.WalletAddress,
		AttachedNative: p.config.JettonGasAmount,
		Bounce:         true,
		Symbol:         h.Symbol,
		Payload: &entities.JettonTransferPayload{
			QueryID:             queryID,
			Amount:              h.AtomicBalance,
			Destination:         destination,
			ResponseDestination: destination,
			ForwardAmount:       p.config.ForwardAmount,
		},
	}
}

func (p *Planner) logDeferred(deferred []entities.PricedHolding, balance decimal.Decimal) {
	symbols := make([]string, 0, len(deferred))
	for _, h := range deferred {
		symbols = append(symbols, h.Symbol)
	}
	p.logger.Info("Holdings deferred to a later drain",
		"balance", balance.String(),
		"gas_per_token", p.config.JettonGasAmount.String(),
		"deferred", symbols)
}
