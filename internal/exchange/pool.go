package exchange

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"daemon/internal/trading"
)

// PoolAdapter trades through an aggregator that routes over pooled
// liquidity. Quotes come from GET /quote, unsigned transactions from
// POST /swap as a base64 blob.
type PoolAdapter struct {
	baseURL string
	client  *http.Client
}

func NewPoolAdapter(baseURL string) *PoolAdapter {
	return &PoolAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type poolQuoteResponse struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SwapMode             string `json:"swapMode"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

type poolSwapRequest struct {
	QuoteResponse poolQuoteResponse `json:"quoteResponse"`
	UserPublicKey string            `json:"userPublicKey"`
	WrapUnwrapSOL bool              `json:"wrapAndUnwrapSol"`
}

type poolSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

func (p *PoolAdapter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*trading.Quote, error) {
	params := url.Values{}
	params.Add("inputMint", inputMint)
	params.Add("outputMint", outputMint)
	params.Add("amount", strconv.FormatUint(amount, 10))
	params.Add("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/quote?%s", p.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trading.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: quote returned status %d", trading.ErrQuoteUnavailable, resp.StatusCode)
	}

	var qr poolQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("%w: decode quote: %v", trading.ErrQuoteUnavailable, err)
	}

	outAmount, err := strconv.ParseUint(qr.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad outAmount %q", trading.ErrQuoteUnavailable, qr.OutAmount)
	}
	minOut, err := strconv.ParseUint(qr.OtherAmountThreshold, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad otherAmountThreshold %q", trading.ErrQuoteUnavailable, qr.OtherAmountThreshold)
	}
	impact, _ := strconv.ParseFloat(qr.PriceImpactPct, 64)

	q := &trading.Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       amount,
		OutAmount:      outAmount,
		MinOutAmount:   minOut,
		PriceImpactPct: impact,
		SlippageBps:    slippageBps,
	}
	if outAmount > 0 {
		q.Price = priceFromAmounts(inputMint, amount, outAmount)
	}
	// The /swap endpoint wants the quote response it issued, not our
	// normalized form, so keep the raw payload on the quote.
	q.Opaque = qr
	return q, nil
}

func (p *PoolAdapter) BuildTransaction(ctx context.Context, q *trading.Quote, owner string) ([]byte, error) {
	raw, ok := q.Opaque.(poolQuoteResponse)
	if !ok {
		return nil, fmt.Errorf("quote was not produced by the pool adapter")
	}

	body, err := json.Marshal(poolSwapRequest{
		QuoteResponse: raw,
		UserPublicKey: owner,
		WrapUnwrapSOL: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swap request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap returned status %d", resp.StatusCode)
	}

	var sr poolSwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	return blob, nil
}

// priceFromAmounts reports the token price in SOL regardless of swap
// direction.
func priceFromAmounts(inputMint string, inAmount, outAmount uint64) float64 {
	if inputMint == trading.SolMint {
		// buy: SOL in, tokens out
		return float64(inAmount) / float64(outAmount)
	}
	// sell: tokens in, SOL out
	return float64(outAmount) / float64(inAmount)
}
