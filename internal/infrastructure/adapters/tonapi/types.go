package tonapi

// JettonsResponse is the body of GET /v2/accounts/{account_id}/jettons.
type JettonsResponse struct {
	Balances []JettonBalance `json:"balances"`
}

// JettonBalance is one jetton held by an account.
type JettonBalance struct {
	Balance       string         `json:"balance"`
	WalletAddress AccountAddress `json:"wallet_address"`
	Jetton        JettonPreview  `json:"jetton"`
}

type AccountAddress struct {
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`
	IsScam   bool   `json:"is_scam"`
	IsWallet bool   `json:"is_wallet"`
}

type JettonPreview struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     int32  `json:"decimals"`
	Verification string `json:"verification"`
}

// Account is the body of GET /v2/accounts/{account_id}. Balance is in nanotons.
type Account struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
	Status  string `json:"status"`
}
