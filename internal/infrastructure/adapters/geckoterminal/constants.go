package geckoterminal

const (
	BaseURL        = "https://api.geckoterminal.com"
	DefaultNetwork = "ton"
	APIVersion     = "20230302"

	// Public API allows 30 calls per minute.
	DefaultRequestsPerSecond = 0.5
)
