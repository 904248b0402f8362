package signer

// BalanceResponse is returned by GET /v1/accounts/{address}/balance. Balance is in nanotons.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// SeqnoResponse is returned by GET /v1/wallets/{address}/seqno.
type SeqnoResponse struct {
	Seqno uint32 `json:"seqno"`
}

// TransferRequest is the body of the estimate and transfer endpoints.
type TransferRequest struct {
	Seqno      uint32       `json:"seqno"`
	SendMode   int          `json:"send_mode"`
	ValidUntil int64        `json:"valid_until,omitempty"`
	Messages   []OutMessage `json:"messages"`
}

// OutMessage is one internal message. Amounts are nanoton strings.
type OutMessage struct {
	Destination    string          `json:"destination"`
	Amount         string          `json:"amount"`
	Bounce         bool            `json:"bounce"`
	JettonTransfer *JettonTransfer `json:"jetton_transfer,omitempty"`
}

// JettonTransfer asks the gateway to encode a TEP-74 transfer body.
type JettonTransfer struct {
	QueryID             uint64 `json:"query_id"`
	Amount              string `json:"amount"`
	Destination         string `json:"destination"`
	ResponseDestination string `json:"response_destination"`
	ForwardAmount       string `json:"forward_ton_amount"`
}

// EstimateResponse carries the total network fee in nanotons.
type EstimateResponse struct {
	TotalFee string `json:"total_fee"`
}

// TransferResponse is returned once the external message is accepted.
type TransferResponse struct {
	Hash  string `json:"hash"`
	Seqno uint32 `json:"seqno"`
}
