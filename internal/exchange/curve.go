package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"daemon/internal/trading"
	"daemon/pkg/utils"
)

// Curve trades always use a wide fixed tolerance; launch curves move too
// fast for the per-session setting to be meaningful.
const curveSlippageBps = 1000

// CurveAdapter trades tokens still on their launch bonding curve. There
// is no quote endpoint; the expected output is simulated locally from the
// curve's virtual reserves, and the trade endpoint returns a raw signable
// transaction blob.
type CurveAdapter struct {
	baseURL string
	client  *http.Client
}

func NewCurveAdapter(baseURL string) *CurveAdapter {
	return &CurveAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type curveStateResponse struct {
	Mint             string  `json:"mint"`
	CurveTokenAmount float64 `json:"curveTokenAmount"`
	Complete         bool    `json:"complete"`
	VirtualSolRes    float64 `json:"virtualSolReserves"`
	VirtualTokenRes  float64 `json:"virtualTokenReserves"`
	TokenTotalSupply float64 `json:"tokenTotalSupply"`
}

type curveTradeRequest struct {
	PublicKey string `json:"publicKey"`
	Action    string `json:"action"`
	Mint      string `json:"mint"`
	// Amount is denominated: SOL for buys, whole tokens for sells.
	Amount           float64 `json:"amount"`
	DenominatedInSol string  `json:"denominatedInSol"`
	Slippage         float64 `json:"slippage"`
	PriorityFee      float64 `json:"priorityFee"`
	Pool             string  `json:"pool"`
}

func (c *CurveAdapter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, _ int) (*trading.Quote, error) {
	side, mint := curveSide(inputMint, outputMint)

	state, err := c.fetchState(ctx, mint)
	if err != nil {
		return nil, err
	}
	vSol, vToken := state.VirtualSolRes, state.VirtualTokenRes
	if vSol == 0 || vToken == 0 {
		vSol, vToken = utils.CurveVirtualReserves(state.CurveTokenAmount)
	}

	var sim *utils.SwapSimulation
	var outAmount uint64
	switch side {
	case trading.SideBuy:
		sim = utils.SimulateBuy(float64(amount)/trading.LamportsPerSOL, vSol, vToken, 0.01)
		outAmount = uint64(sim.AmountOut * 1e6) // curve tokens use 6 decimals
	case trading.SideSell:
		sim = utils.SimulateSell(float64(amount)/1e6, vSol, vToken, 0.01)
		outAmount = uint64(sim.AmountOut * trading.LamportsPerSOL)
	}
	if outAmount == 0 {
		return nil, fmt.Errorf("%w: simulated zero output for %s", trading.ErrQuoteUnavailable, mint)
	}

	return &trading.Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       amount,
		OutAmount:      outAmount,
		MinOutAmount:   uint64(utils.MinAmountOut(float64(outAmount), curveSlippageBps)),
		Price:          sim.PriceAfter,
		PriceImpactPct: sim.PriceImpactPct,
		SlippageBps:    curveSlippageBps,
		Opaque:         curveQuoteMeta{side: side, mint: mint},
	}, nil
}

type curveQuoteMeta struct {
	side trading.Side
	mint string
}

func (c *CurveAdapter) BuildTransaction(ctx context.Context, q *trading.Quote, owner string) ([]byte, error) {
	meta, ok := q.Opaque.(curveQuoteMeta)
	if !ok {
		return nil, fmt.Errorf("quote was not produced by the curve adapter")
	}

	// The trade endpoint expects denominated amounts, not raw units.
	amount := float64(q.InAmount) / trading.LamportsPerSOL
	if meta.side == trading.SideSell {
		amount = float64(q.InAmount) / 1e6
	}

	body, err := json.Marshal(curveTradeRequest{
		PublicKey:        owner,
		Action:           string(meta.side),
		Mint:             meta.mint,
		Amount:           amount,
		DenominatedInSol: fmt.Sprintf("%t", meta.side == trading.SideBuy),
		Slippage:         float64(curveSlippageBps) / 100,
		PriorityFee:      0.00001,
		Pool:             "pump",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trade-local", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trade request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trade returned status %d", resp.StatusCode)
	}

	// The response body is the serialized unsigned transaction itself.
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trade response: %w", err)
	}
	return blob, nil
}

func (c *CurveAdapter) fetchState(ctx context.Context, mint string) (*curveStateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coins/"+mint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trading.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: curve state returned status %d", trading.ErrQuoteUnavailable, resp.StatusCode)
	}
	var state curveStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("%w: decode curve state: %v", trading.ErrQuoteUnavailable, err)
	}
	return &state, nil
}

func curveSide(inputMint, outputMint string) (trading.Side, string) {
	if inputMint == trading.SolMint {
		return trading.SideBuy, outputMint
	}
	return trading.SideSell, inputMint
}
