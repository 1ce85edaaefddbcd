package exchange

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"daemon/internal/trading"
)

// Adapter quotes a swap and builds the unsigned transaction carrying it
// out. The engine never assembles exchange-specific instructions itself;
// each adapter talks to its exchange's HTTP API and returns an opaque
// transaction blob for the custody layer to sign.
type Adapter interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*trading.Quote, error)
	BuildTransaction(ctx context.Context, q *trading.Quote, owner string) ([]byte, error)
}

// SignBlob deserializes an unsigned transaction blob, signs its message
// with the custody sign function and reserializes it. The bot wallet is
// always the sole signer and fee payer of adapter-built transactions.
func SignBlob(ctx context.Context, raw []byte, sign trading.SignFunc) ([]byte, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction blob: %w", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	sig, err := sign(ctx, msg)
	if err != nil {
		return nil, err
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	tx.Signatures = []solana.Signature{solana.SignatureFromBytes(sig)}
	signed, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize signed transaction: %w", err)
	}
	return signed, nil
}
