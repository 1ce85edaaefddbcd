package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"

	"daemon/internal/trading"
)

const (
	confirmPollInterval = 2 * time.Second
	confirmTimeout      = 60 * time.Second
)

// Client wraps the JSON-RPC ledger API behind the balance and submission
// surfaces the engine components depend on.
type Client struct {
	rpc *rpc.Client
}

func NewClient(endpoint string) *Client {
	return &Client{rpc: rpc.New(endpoint)}
}

// NativeBalance returns the lamport balance of address.
func (c *Client) NativeBalance(ctx context.Context, address string) (uint64, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", trading.ErrInvalidAddress, address)
	}
	resp, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", address, err)
	}
	return resp.Value, nil
}

// TokenBalance sums the raw balance of every token account address holds
// for mint. A wallet with no token account holds zero.
func (c *Client) TokenBalance(ctx context.Context, address, mint string) (uint64, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", trading.ErrInvalidAddress, address)
	}
	mintPubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", trading.ErrInvalidAddress, mint)
	}

	resp, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{Mint: &mintPubkey},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64})
	if err != nil {
		return 0, fmt.Errorf("get token accounts %s/%s: %w", address, mint, err)
	}

	var total uint64
	for _, acc := range resp.Value {
		balResp, err := c.rpc.GetTokenAccountBalance(ctx, acc.Pubkey, rpc.CommitmentConfirmed)
		if err != nil {
			log.WithField("account", acc.Pubkey.String()).Warnf("token balance read failed: %v", err)
			continue
		}
		if balResp == nil || balResp.Value == nil {
			continue
		}
		amt, err := strconv.ParseUint(balResp.Value.Amount, 10, 64)
		if err != nil {
			continue
		}
		total += amt
	}
	return total, nil
}

// SubmitTransaction sends a fully signed serialized transaction and
// returns its signature.
func (c *Client) SubmitTransaction(ctx context.Context, raw []byte) (string, error) {
	sig, err := c.rpc.SendEncodedTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), nil
}

// ConfirmTransaction polls signature status until the transaction is
// confirmed or finalized. An on-chain execution error surfaces as a
// rejection; expiry of the poll window as a timeout.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	for {
		status, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(status.Value) > 0 && status.Value[0] != nil {
			st := status.Value[0]
			if st.Err != nil {
				errJSON, _ := json.Marshal(st.Err)
				return fmt.Errorf("%w: %s", trading.ErrTransactionRejected, string(errJSON))
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
		if err != nil {
			log.WithField("signature", signature).Debugf("status poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s not confirmed", trading.ErrTransactionTimeout, signature)
		case <-time.After(confirmPollInterval):
		}
	}
}

// TransferSOL builds, signs and lands a native transfer from the custody
// wallet. Used for service-fee collection.
func (c *Client) TransferSOL(ctx context.Context, from string, sign trading.SignFunc, to string, lamports uint64) (string, error) {
	fromPubkey, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return "", fmt.Errorf("%w: %s", trading.ErrInvalidAddress, from)
	}
	toPubkey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("%w: %s", trading.ErrInvalidAddress, to)
	}

	bh, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, fromPubkey, toPubkey).Build(),
		},
		bh.Value.Blockhash,
		solana.TransactionPayer(fromPubkey),
	)
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize message: %w", err)
	}
	sigBytes, err := sign(ctx, msg)
	if err != nil {
		return "", err
	}
	tx.Signatures = []solana.Signature{solana.SignatureFromBytes(sigBytes)}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transfer: %w", err)
	}
	signature, err := c.SubmitTransaction(ctx, raw)
	if err != nil {
		return "", err
	}
	if err := c.ConfirmTransaction(ctx, signature); err != nil {
		return "", err
	}
	return signature, nil
}
