package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// priceResponse is the wire format of the price API.
// Prices come back as decimal strings ("1843.52") and are scaled into the
// feed's fixed-point precision locally.
type priceResponse struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	UpdatedAt int64  `json:"updated_at"` // unix seconds
}

// HTTPFeed queries an external price API for the latest answer of one pair.
// Every LatestAnswer call performs a fresh query; the instance engine decides
// whether the returned observation is still acceptable.
type HTTPFeed struct {
	httpClient  *http.Client
	baseURL     string
	symbol      string
	decimals    uint8
	description string
}

// NewHTTPFeed creates a feed backed by the price API at apiURL.
// symbol selects the pair (e.g. "ETH-USD"); decimals is the fixed-point
// precision answers are scaled to.
func NewHTTPFeed(apiURL, symbol string, decimals uint8) (*HTTPFeed, error) {
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("failed to parse price API URL: %w", err)
	}
	return &HTTPFeed{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:     apiURL,
		symbol:      symbol,
		decimals:    decimals,
		description: symbol,
	}, nil
}

// LatestAnswer implements PriceFeed.
func (f *HTTPFeed) LatestAnswer() (Answer, error) {
	reqURL := fmt.Sprintf("%s/v1/prices/%s", f.baseURL, url.PathEscape(f.symbol))

	resp, err := f.httpClient.Get(reqURL)
	if err != nil {
		return Answer{}, fmt.Errorf("price query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Answer{}, fmt.Errorf("price API returned status %d: %s", resp.StatusCode, string(body))
	}

	var pr priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Answer{}, fmt.Errorf("failed to decode price response: %w", err)
	}

	price, err := decimal.NewFromString(pr.Price)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to parse price %q: %w", pr.Price, err)
	}

	// Scale the decimal answer into fixed-point. Anything beyond the feed
	// precision is truncated, never rounded up.
	scaled := price.Shift(int32(f.decimals)).Truncate(0)

	return Answer{
		Price:     scaled.BigInt(),
		Decimals:  f.decimals,
		UpdatedAt: time.Unix(pr.UpdatedAt, 0),
	}, nil
}

// Description implements PriceFeed.
func (f *HTTPFeed) Description() string {
	return f.description
}
