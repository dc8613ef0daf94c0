package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"xagent/internal/logging"
)

const coingeckoURL = "https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true"

// cryptoPriceDecl is advertised to the model so it can ground replies in a
// current price when the tweet is about a specific coin.
var cryptoPriceDecl = geminiFunctionDecl{
	Name:        "get_crypto_price",
	Description: "Fetches the current price and 24h change percentage of a cryptocurrency.",
	Parameters: json.RawMessage(`{
		"type": "OBJECT",
		"properties": {
			"coinId": {"type": "STRING", "description": "The id of the coin (e.g., bitcoin, ethereum, solana, dogecoin)"}
		},
		"required": ["coinId"]
	}`),
}

// lookupCryptoPrice resolves a model-initiated price request. Failures come
// back as nil so the model answers without the data instead of the reply
// attempt dying.
func (c *GeminiClient) lookupCryptoPrice(ctx context.Context, args map[string]interface{}) map[string]interface{} {
	log := logging.Get(logging.CategoryBrain)
	coinID, _ := args["coinId"].(string)
	if coinID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(coingeckoURL, coinID), nil)
	if err != nil {
		return nil
	}
	resp, err := c.pageClient.Do(req)
	if err != nil {
		log.Debugw("price lookup failed", "coin", coinID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	var data map[string]struct {
		USD       float64 `json:"usd"`
		Change24h float64 `json:"usd_24h_change"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Debugw("price decode failed", "coin", coinID, "error", err)
		return nil
	}
	coin, ok := data[coinID]
	if !ok {
		return nil
	}
	return map[string]interface{}{
		"price":      coin.USD,
		"change_24h": coin.Change24h,
	}
}
