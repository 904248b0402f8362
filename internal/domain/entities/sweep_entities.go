package entities

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of the native coin (nanotons).
const NativeDecimals = 9

// Holding is a non-native token balance held by a source account.
type Holding struct {
	OwnerAddress  string   `json:"owner_address"`
	TokenAddress  string   `json:"token_address"`
	WalletAddress string   `json:"wallet_address"`
	AtomicBalance *big.Int `json:"atomic_balance"`
	Decimals      int32    `json:"decimals"`
	Symbol        string   `json:"symbol"`
}

// HasBalance reports whether the holding carries a positive atomic balance.
func (h Holding) HasBalance() bool {
	return h.AtomicBalance != nil && h.AtomicBalance.Sign() > 0
}

// Amount returns the balance scaled by the token's decimals.
func (h Holding) Amount() decimal.Decimal {
	if h.AtomicBalance == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(h.AtomicBalance, -h.Decimals)
}

// PricedHolding is a Holding with its USD valuation. USDValue is zero when
// the unit price is unknown.
type PricedHolding struct {
	Holding
	UnitPriceUSD decimal.NullDecimal `json:"unit_price_usd"`
	USDValue     decimal.Decimal     `json:"usd_value"`
}

// PriorityEntry is the ranked view of one owner's holdings. Entries are
// replaced wholesale and never modified after they are published.
type PriorityEntry struct {
	OwnerAddress string          `json:"owner_address"`
	Holdings     []PricedHolding `json:"holdings"`
	RefreshedAt  time.Time       `json:"refreshed_at"`
	PricesAsOf   time.Time       `json:"prices_as_of"`
}

// JettonTransferPayload is the body of a jetton transfer sent to the owner's jetton wallet.
type JettonTransferPayload struct {
	QueryID             uint64          `json:"query_id"`
	Amount              *big.Int        `json:"amount"`
	Destination         string          `json:"destination"`
	ResponseDestination string          `json:"response_destination"`
	ForwardAmount       decimal.Decimal `json:"forward_amount"`
}

// TransferMessage is one internal message of a batched wallet transfer.
// A nil Payload means a plain native transfer.
type TransferMessage struct {
	Destination    string                 `json:"destination"`
	AttachedNative decimal.Decimal        `json:"attached_native"`
	Payload        *JettonTransferPayload `json:"payload,omitempty"`
	Bounce         bool                   `json:"bounce"`
	Symbol         string                 `json:"symbol,omitempty"`
}

func (m TransferMessage) IsJetton() bool {
	return m.Payload != nil
}

// PlanReason records which branch produced a TransferPlan.
type PlanReason string

const (
	PlanReasonBelowThreshold  PlanReason = "below_threshold"
	PlanReasonTokenBatch      PlanReason = "token_batch"
	PlanReasonNativeOnly      PlanReason = "native_only"
	PlanReasonNothingPositive PlanReason = "nothing_net_positive"
)

// TransferPlan is the ordered batch a drain submits. It is built once and
// either submitted whole or discarded.
type TransferPlan struct {
	Messages     []TransferMessage `json:"messages"`
	Remainder    decimal.Decimal   `json:"remainder"`
	EstimatedFee decimal.Decimal   `json:"estimated_fee"`
	FeeEstimated bool              `json:"fee_estimated"`
	Deferred     []PricedHolding   `json:"deferred,omitempty"`
	Reason       PlanReason        `json:"reason"`
}

func (p *TransferPlan) IsEmpty() bool {
	return p == nil || len(p.Messages) == 0
}

// TotalAttached sums the native coin attached to every message, remainder included.
func (p *TransferPlan) TotalAttached() decimal.Decimal {
	total := decimal.Zero
	if p == nil {
		return total
	}
	for _, m := range p.Messages {
		total = total.Add(m.AttachedNative)
	}
	return total
}

func (p *TransferPlan) TokenMessageCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, m := range p.Messages {
		if m.IsJetton() {
			n++
		}
	}
	return n
}

// TriggerSource identifies what asked for a drain evaluation.
type TriggerSource string

const (
	TriggerSourcePoll    TriggerSource = "poll"
	TriggerSourceWebhook TriggerSource = "webhook"
	TriggerSourceManual  TriggerSource = "manual"
)

// Trigger is the single message type both the poller and the webhook hand to the coordinator.
type Trigger struct {
	Owner      string        `json:"owner"`
	Source     TriggerSource `json:"source"`
	ReceivedAt time.Time     `json:"received_at"`
}

// SubmitReceipt is what the wallet gateway returns for an accepted batch.
type SubmitReceipt struct {
	Hash     string `json:"hash"`
	Sequence uint32 `json:"seqno"`
}

// DrainResult describes how a single Trigger call ended.
type DrainResult struct {
	RunID   uuid.UUID       `json:"run_id"`
	Owner   string          `json:"owner"`
	Outcome DrainOutcome    `json:"outcome"`
	Balance decimal.Decimal `json:"balance"`
	Plan    *TransferPlan   `json:"plan,omitempty"`
	Receipt *SubmitReceipt  `json:"receipt,omitempty"`
	Err     error           `json:"-"`
}

// DrainRun is the persisted audit record of a drain that passed trigger evaluation.
type DrainRun struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	SourceAddress string          `json:"source_address" db:"source_address"`
	Trigger       TriggerSource   `json:"trigger" db:"trigger"`
	Outcome       DrainOutcome    `json:"outcome" db:"outcome"`
	NativeBalance decimal.Decimal `json:"native_balance" db:"native_balance"`
	EstimatedFee  decimal.Decimal `json:"estimated_fee" db:"estimated_fee"`
	Remainder     decimal.Decimal `json:"remainder" db:"remainder"`
	TokenMessages int             `json:"token_messages" db:"token_messages"`
	Sequence      *int64          `json:"sequence,omitempty" db:"sequence"`
	TxHash        *string         `json:"tx_hash,omitempty" db:"tx_hash"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	FinishedAt    time.Time       `json:"finished_at" db:"finished_at"`
}
