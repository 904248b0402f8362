// Package drain decides when a source account is swept and makes sure at
// most one sweep per source is in flight.
package drain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/internal/domain/services/planner"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
	"github.com/ton-sweeper/sweeper_service/pkg/metrics"
	"github.com/ton-sweeper/sweeper_service/pkg/routine"
)

// WalletClient is the transaction capability of the wallet gateway.
type WalletClient interface {
	GetNativeBalance(ctx context.Context, address string) (*big.Int, error)
	GetNextSequence(ctx context.Context, wallet string) (uint32, error)
	EstimateFee(ctx context.Context, wallet string, seqno uint32, messages []entities.TransferMessage) (decimal.Decimal, error)
	Submit(ctx context.Context, wallet string, seqno uint32, messages []entities.TransferMessage) (*entities.SubmitReceipt, error)
}

// Rankings is the priority cache as seen by the coordinator.
type Rankings interface {
	Refresh(ctx context.Context, owner string)
	Get(owner string) []entities.PricedHolding
	Snapshot(owner string) (*entities.PriorityEntry, bool)
}

// Planner builds transfer plans.
type Planner interface {
	Plan(ctx context.Context, nativeBalance decimal.Decimal, ranked []entities.PricedHolding, estimate planner.FeeEstimator, destination string) *entities.TransferPlan
}

// RunRecorder persists drain runs. Optional.
type RunRecorder interface {
	Record(ctx context.Context, run *entities.DrainRun) error
}

type Config struct {
	Destination         string
	Sources             []string
	MinTriggerThreshold decimal.Decimal
	ArrivalEpsilon      decimal.Decimal
	DrainTimeout        time.Duration
	RefreshTimeout      time.Duration
}

// SourceStatus is a point-in-time view of one source.
type SourceStatus struct {
	Address     string                `json:"address"`
	State       entities.DrainState   `json:"state"`
	LastBalance decimal.Decimal       `json:"last_balance"`
	LastOutcome entities.DrainOutcome `json:"last_outcome,omitempty"`
	LastRunAt   *time.Time            `json:"last_run_at,omitempty"`
}

type sourceState struct {
	claimed     bool
	state       entities.DrainState
	seen        bool
	lastSeen    decimal.Decimal
	lastOutcome entities.DrainOutcome
	lastRunAt   time.Time
}

type Coordinator struct {
	wallet   WalletClient
	rankings Rankings
	planner  Planner
	tasks    *routine.Manager
	recorder RunRecorder
	config   Config
	logger   *logger.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	sources map[string]*sourceState

	now func() time.Time
}

func NewCoordinator(
	wallet WalletClient,
	rankings Rankings,
	plans Planner,
	tasks *routine.Manager,
	recorder RunRecorder,
	config Config,
	log *logger.Logger,
) *Coordinator {
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = 2 * time.Minute
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = 30 * time.Second
	}

	sources := make(map[string]*sourceState, len(config.Sources))
	for _, addr := range config.Sources {
		sources[addr] = &sourceState{state: entities.DrainStateIdle, lastSeen: decimal.Zero}
	}

	return &Coordinator{
		wallet:   wallet,
		rankings: rankings,
		planner:  plans,
		tasks:    tasks,
		recorder: recorder,
		config:   config,
		logger:   log,
		tracer:   otel.Tracer("drain"),
		sources:  sources,
		now:      time.Now,
	}
}

// IsSource reports whether address is a monitored source.
func (c *Coordinator) IsSource(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sources[address]
	return ok
}

// Sources returns the monitored addresses in a stable order.
func (c *Coordinator) Sources() []string {
	out := make([]string, len(c.config.Sources))
	copy(out, c.config.Sources)
	return out
}

// Status reports every source's coordinator state.
func (c *Coordinator) Status() []SourceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SourceStatus, 0, len(c.sources))
	for addr, s := range c.sources {
		st := SourceStatus{
			Address:     addr,
			State:       s.state,
			LastBalance: s.lastSeen,
			LastOutcome: s.lastOutcome,
		}
		if !s.lastRunAt.IsZero() {
			at := s.lastRunAt
			st.LastRunAt = &at
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// TriggerAsync hands the trigger to the task executor and returns at once.
// A trigger for a source that already has one queued is dropped.
func (c *Coordinator) TriggerAsync(trig entities.Trigger) error {
	id := fmt.Sprintf("drain:%s:%s", trig.Source, trig.Owner)
	err := c.tasks.RunTask(&routine.Task{
		ID: id,
		Handler: func(ctx context.Context) error {
			res := c.Trigger(ctx, trig)
			return res.Err
		},
		OnError: func(id string, err error) {
			c.logger.Debug("Async drain finished with error", "task", id, "error", err)
		},
	})
	if errors.Is(err, routine.ErrRoutineExists) {
		metrics.DrainTriggersTotal.WithLabelValues(string(trig.Source), string(entities.OutcomeCoalesced)).Inc()
		return nil
	}
	return err
}

// Trigger evaluates one source and, when warranted, runs a full drain. It
// never returns an error; failures are logged and reported in the result.
// Once past trigger evaluation the drain runs to completion even if ctx is
// cancelled.
func (c *Coordinator) Trigger(ctx context.Context, trig entities.Trigger) entities.DrainResult {
	res := entities.DrainResult{Owner: trig.Owner}
	short := entities.ShortAddress(trig.Owner)

	claimed, known := c.claim(trig.Owner)
	switch {
	case !known:
		c.logger.Warn("Trigger for unknown source ignored", "source", short, "trigger", trig.Source)
		res.Outcome = entities.OutcomeUnknownSource
		c.count(trig, res.Outcome)
		return res
	case !claimed:
		c.logger.Debug("Drain already in flight, trigger coalesced", "source", short, "trigger", trig.Source)
		res.Outcome = entities.OutcomeCoalesced
		c.count(trig, res.Outcome)
		return res
	}
	defer c.release(trig.Owner, &res)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.DrainTimeout)
	defer cancel()

	nano, err := c.wallet.GetNativeBalance(runCtx, trig.Owner)
	if err != nil {
		c.logger.Warn("Balance read failed, skipping trigger",
			"source", short,
			"stage", "balance",
			"trigger", trig.Source,
			"error", err)
		res.Outcome = entities.OutcomeBalanceUnavailable
		res.Err = err
		c.count(trig, res.Outcome)
		return res
	}

	balance := entities.NanoToCoins(nano)
	res.Balance = balance
	arrived := c.observe(trig.Owner, balance)

	if balance.LessThan(c.config.MinTriggerThreshold) && !arrived {
		res.Outcome = entities.OutcomeNotTriggered
		c.count(trig, res.Outcome)
		return res
	}

	res.RunID = uuid.New()
	c.run(runCtx, trig, &res)
	c.count(trig, res.Outcome)
	return res
}

// run drives ESTIMATING and SUBMITTING for a claimed source.
func (c *Coordinator) run(ctx context.Context, trig entities.Trigger, res *entities.DrainResult) {
	started := c.now()
	short := entities.ShortAddress(trig.Owner)
	log := c.logger.With("source", short, "run_id", res.RunID.String())

	ctx, span := c.tracer.Start(ctx, "drain.run", trace.WithAttributes(
		attribute.String("source", trig.Owner),
		attribute.String("trigger", string(trig.Source)),
		attribute.String("balance", res.Balance.String()),
	))
	defer span.End()

	metrics.DrainsInFlight.Inc()
	defer metrics.DrainsInFlight.Dec()

	defer func() {
		metrics.DrainDuration.WithLabelValues(string(res.Outcome)).Observe(c.now().Sub(started).Seconds())
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(res.Outcome))
		}
		c.record(trig, res, started)
		c.scheduleRefresh(trig.Owner)
	}()

	c.transition(trig.Owner, entities.DrainStateEstimating)
	log.Info("Drain started",
		"stage", "estimating",
		"trigger", trig.Source,
		"balance", res.Balance.String())

	if _, ok := c.rankings.Snapshot(trig.Owner); !ok {
		c.rankings.Refresh(ctx, trig.Owner)
	}

	seqno, err := c.wallet.GetNextSequence(ctx, trig.Owner)
	if err != nil {
		log.Warn("Sequence read failed, drain abandoned", "stage", "estimating", "error", err)
		res.Outcome = entities.OutcomeSequenceUnavailable
		res.Err = err
		return
	}

	estimate := func(ctx context.Context, messages []entities.TransferMessage) (decimal.Decimal, error) {
		return c.wallet.EstimateFee(ctx, trig.Owner, seqno, messages)
	}
	plan := c.planner.Plan(ctx, res.Balance, c.rankings.Get(trig.Owner), estimate, c.config.Destination)
	res.Plan = plan

	if plan.IsEmpty() {
		log.Info("Nothing to drain", "stage", "estimating", "reason", plan.Reason)
		res.Outcome = entities.OutcomeNothingToDrain
		return
	}

	log.Info("Drain batch composed",
		"stage", "estimating",
		"seqno", seqno,
		"token_messages", plan.TokenMessageCount(),
		"remainder", plan.Remainder.String(),
		"estimated_fee", plan.EstimatedFee.String(),
		"fee_estimated", plan.FeeEstimated,
		"deferred", len(plan.Deferred),
		"reason", plan.Reason)

	c.transition(trig.Owner, entities.DrainStateSubmitting)

	receipt, err := c.wallet.Submit(ctx, trig.Owner, seqno, plan.Messages)
	if err != nil {
		// Blind resubmission with the same seqno is unsafe; the next trigger rebuilds.
		log.Error("Drain submission failed", "stage", "submitting", "seqno", seqno, "error", err)
		res.Outcome = entities.OutcomeSubmitFailed
		res.Err = err
		return
	}

	res.Outcome = entities.OutcomeSubmitted
	res.Receipt = receipt
	metrics.DrainMessagesTotal.WithLabelValues("jetton").Add(float64(plan.TokenMessageCount()))
	metrics.DrainMessagesTotal.WithLabelValues("native").Add(float64(len(plan.Messages) - plan.TokenMessageCount()))
	metrics.DrainNativeSwept.Add(plan.TotalAttached().InexactFloat64())

	log.Info("Drain submitted",
		"stage", "submitting",
		"seqno", seqno,
		"tx_hash", receipt.Hash,
		"messages", len(plan.Messages),
		"committed", plan.TotalAttached().String(),
		"duration", c.now().Sub(started))
}

// claim marks owner busy. It returns false when a drain is already in flight.
func (c *Coordinator) claim(owner string) (claimed, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sources[owner]
	if !ok {
		return false, false
	}
	if s.claimed {
		return false, true
	}
	s.claimed = true
	return true, true
}

func (c *Coordinator) release(owner string, res *entities.DrainResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sources[owner]
	s.claimed = false
	s.state = entities.DrainStateIdle
	s.lastOutcome = res.Outcome
	if res.Outcome.Drained() {
		s.lastRunAt = c.now()
	}
}

func (c *Coordinator) transition(owner string, next entities.DrainState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sources[owner]
	if err := s.state.ValidateTransition(next); err != nil {
		c.logger.Error("Unexpected drain state change", "source", entities.ShortAddress(owner), "error", err)
	}
	s.state = next
}

// observe records balance and reports an arrival: growth beyond the epsilon
// since the previous read. The first read only sets the baseline and a
// decrease only moves it down.
func (c *Coordinator) observe(owner string, balance decimal.Decimal) bool {
	metrics.SourceBalance.WithLabelValues(owner).Set(balance.InexactFloat64())

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sources[owner]
	arrived := s.seen && balance.Sub(s.lastSeen).GreaterThan(c.config.ArrivalEpsilon)
	s.seen = true
	s.lastSeen = balance
	return arrived
}

func (c *Coordinator) scheduleRefresh(owner string) {
	err := c.tasks.RunTask(&routine.Task{
		ID: "refresh:" + owner,
		Handler: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, c.config.RefreshTimeout)
			defer cancel()
			c.rankings.Refresh(ctx, owner)
			return ctx.Err()
		},
		OnError: func(id string, err error) {
			c.logger.Warn("Background priority refresh failed", "task", id, "error", err)
		},
	})
	switch {
	case err == nil:
	case errors.Is(err, routine.ErrRoutineExists):
		c.logger.Debug("Priority refresh already running", "source", entities.ShortAddress(owner))
	default:
		c.logger.Warn("Could not schedule priority refresh", "source", entities.ShortAddress(owner), "error", err)
	}
}

func (c *Coordinator) record(trig entities.Trigger, res *entities.DrainResult, started time.Time) {
	if c.recorder == nil {
		return
	}

	run := &entities.DrainRun{
		ID:            res.RunID,
		SourceAddress: trig.Owner,
		Trigger:       trig.Source,
		Outcome:       res.Outcome,
		NativeBalance: res.Balance,
		EstimatedFee:  decimal.Zero,
		Remainder:     decimal.Zero,
		StartedAt:     started,
		FinishedAt:    c.now(),
	}
	if res.Plan != nil {
		run.EstimatedFee = res.Plan.EstimatedFee
		run.Remainder = res.Plan.Remainder
		run.TokenMessages = res.Plan.TokenMessageCount()
	}
	if res.Receipt != nil {
		seq := int64(res.Receipt.Sequence)
		hash := res.Receipt.Hash
		run.Sequence = &seq
		run.TxHash = &hash
	}
	if res.Err != nil {
		msg := res.Err.Error()
		run.ErrorMessage = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.Record(ctx, run); err != nil {
		c.logger.Warn("Failed to record drain run", "run_id", res.RunID.String(), "error", err)
	}
}

func (c *Coordinator) count(trig entities.Trigger, outcome entities.DrainOutcome) {
	metrics.DrainTriggersTotal.WithLabelValues(string(trig.Source), string(outcome)).Inc()
}
