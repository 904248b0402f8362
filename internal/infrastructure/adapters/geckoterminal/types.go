package geckoterminal

// TokenPriceResponse is the body of GET /api/v2/simple/networks/{network}/token_price/{addresses}.
type TokenPriceResponse struct {
	Data TokenPriceData `json:"data"`
}

type TokenPriceData struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Attributes TokenPriceAttributes `json:"attributes"`
}

// TokenPriceAttributes maps token address to a decimal USD price string; missing prices are null.
type TokenPriceAttributes struct {
	TokenPrices map[string]*string `json:"token_prices"`
}
