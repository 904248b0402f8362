package tonapi

const (
	MainnetURL = "https://tonapi.io"
	TestnetURL = "https://testnet.tonapi.io"

	// Free tier allows one request per second without a key.
	DefaultRequestsPerSecond = 1
)
