package custody

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/blocto/solana-go-sdk/types"
	"golang.org/x/crypto/scrypt"

	"daemon/internal/models"
	"daemon/internal/storage"
	"daemon/internal/trading"
)

const (
	saltLength = 32
	keyLength  = 32

	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// Store holds custody of one signing key per user. Secrets are encrypted
// with AES-256-GCM under a key derived from the process-wide master key
// and a per-record random salt; the master key itself is never persisted.
type Store struct {
	masterKey []byte
	data      storage.DataStore
}

// NewStore fails closed when the master key is missing: generating an
// ephemeral key instead would orphan every existing wallet record.
func NewStore(masterKey string, data storage.DataStore) (*Store, error) {
	if masterKey == "" {
		return nil, errors.New("custody: master key is required, refusing to start")
	}
	return &Store{masterKey: []byte(masterKey), data: data}, nil
}

// Create generates a keypair for userID, encrypts and persists the secret
// and returns the derived public address. At most one wallet exists per
// user; the address is immutable once created.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("custody: %w: empty user id", trading.ErrInvalidAddress)
	}
	if _, err := s.data.GetWallet(ctx, userID); err == nil {
		return "", fmt.Errorf("custody: user %s: %w", userID, trading.ErrAlreadyExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("custody: lookup wallet: %w", err)
	}

	account := types.NewAccount()
	blob, err := s.seal(account.PrivateKey)
	zero(account.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("custody: encrypt secret: %w", err)
	}

	wallet := &models.Wallet{
		UserID:          userID,
		PublicAddress:   account.PublicKey.ToBase58(),
		EncryptedSecret: blob,
	}
	if err := s.data.CreateWallet(ctx, wallet); err != nil {
		return "", fmt.Errorf("custody: persist wallet: %w", err)
	}
	return wallet.PublicAddress, nil
}

// Sign decrypts the user's secret transiently, signs message and discards
// the plaintext before returning.
func (s *Store) Sign(ctx context.Context, userID string, message []byte) ([]byte, error) {
	wallet, err := s.data.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("custody: user %s: %w", userID, trading.ErrNotFound)
		}
		return nil, fmt.Errorf("custody: lookup wallet: %w", err)
	}

	secret, err := s.open(wallet.EncryptedSecret)
	if err != nil {
		return nil, err
	}
	defer zero(secret)

	account, err := types.AccountFromBytes(secret)
	if err != nil {
		return nil, fmt.Errorf("custody: user %s: %w", userID, trading.ErrDecryptionFailed)
	}
	return account.Sign(message), nil
}

// SignFunc returns a trading.SignFunc bound to one user, for handing to
// exchange adapters without exposing the store.
func (s *Store) SignFunc(userID string) trading.SignFunc {
	return func(ctx context.Context, message []byte) ([]byte, error) {
		return s.Sign(ctx, userID, message)
	}
}

// Address returns the public address for a user's wallet.
func (s *Store) Address(ctx context.Context, userID string) (string, error) {
	wallet, err := s.data.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("custody: user %s: %w", userID, trading.ErrNotFound)
		}
		return "", fmt.Errorf("custody: lookup wallet: %w", err)
	}
	return wallet.PublicAddress, nil
}

// Remove deletes the wallet record for a user.
func (s *Store) Remove(ctx context.Context, userID string) error {
	if _, err := s.data.GetWallet(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("custody: user %s: %w", userID, trading.ErrNotFound)
		}
		return fmt.Errorf("custody: lookup wallet: %w", err)
	}
	return s.data.DeleteWallet(ctx, userID)
}

// seal encrypts a secret as base64(salt || nonce || ciphertext+tag).
func (s *Store) seal(secret []byte) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := s.cipherFor(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, len(salt)+len(nonce)+len(secret)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, secret, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// open reverses seal. A ciphertext or tag mismatch (tampering, wrong
// master key) yields trading.ErrDecryptionFailed, never a wrong key.
func (s *Store) open(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("custody: %w: malformed record", trading.ErrDecryptionFailed)
	}
	if len(raw) < saltLength {
		return nil, fmt.Errorf("custody: %w: record too short", trading.ErrDecryptionFailed)
	}
	salt := raw[:saltLength]
	gcm, err := s.cipherFor(salt)
	if err != nil {
		return nil, err
	}
	rest := raw[saltLength:]
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("custody: %w: record too short", trading.ErrDecryptionFailed)
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	secret, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("custody: %w", trading.ErrDecryptionFailed)
	}
	return secret, nil
}

func (s *Store) cipherFor(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.masterKey, salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
