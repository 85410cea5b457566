package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPrivateKey is returned when the server wallet key cannot be decoded
	ErrInvalidPrivateKey = errors.New("invalid server wallet private key")

	// ErrAmountPrecision is returned when an amount has more decimals than the mint
	ErrAmountPrecision = errors.New("amount exceeds mint precision")

	// ErrTransactionFailed is returned when a submitted transaction fails on chain
	ErrTransactionFailed = errors.New("transaction execution failed")

	// ErrConfirmationTimeout is returned when a transaction is not confirmed in time
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

const finalCheckTimeout = 5 * time.Second

// SPLConfig configures an SPL token ledger
type SPLConfig struct {
	Network        string
	RPCURL         string
	MintAddress    string
	Decimals       uint8
	PrivateKey     string
	ConfirmTimeout time.Duration
}

// SPLLedger is a TokenLedger over an SPL token mint. The server wallet owns the
// treasury token account and must be an approved delegate of depositor accounts.
type SPLLedger struct {
	rpcClient      *rpc.Client
	rpcURL         string
	mint           solana.PublicKey
	decimals       uint8
	wallet         solana.PrivateKey
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// NewSPLLedger creates a new SPL ledger client
func NewSPLLedger(cfg SPLConfig) (*SPLLedger, error) {
	rpcURL := cfg.RPCURL
	if rpcURL == "" {
		rpcURL = endpointFor(cfg.Network)
	}

	mint, err := solana.PublicKeyFromBase58(cfg.MintAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint address: %w", err)
	}

	wallet, err := decodePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	l := &SPLLedger{
		rpcClient:      rpc.New(rpcURL),
		rpcURL:         rpcURL,
		mint:           mint,
		decimals:       cfg.Decimals,
		wallet:         wallet,
		confirmTimeout: timeout,
		pollInterval:   time.Second,
	}

	log.Info().
		Str("wallet", l.Treasury()).
		Str("mint", mint.String()).
		Str("rpc", rpcURL).
		Msg("[SPL] server wallet loaded")

	return l, nil
}

func endpointFor(network string) string {
	switch network {
	case "mainnet-beta":
		return rpc.MainNetBeta_RPC
	case "testnet":
		return rpc.TestNet_RPC
	case "localnet":
		return rpc.LocalNet_RPC
	default:
		return rpc.DevNet_RPC
	}
}

func decodePrivateKey(encoded string) (solana.PrivateKey, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidPrivateKey)
	}
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("%w: expected 64 bytes, got %d", ErrInvalidPrivateKey, len(raw))
	}
	return solana.PrivateKey(raw), nil
}

// Treasury returns the server wallet address, which is the governance treasury identity
func (l *SPLLedger) Treasury() string {
	return l.wallet.PublicKey().String()
}

// BalanceOf sums the mint's token accounts owned by identity
func (l *SPLLedger) BalanceOf(ctx context.Context, identity string) (decimal.Decimal, error) {
	owner, err := solana.PublicKeyFromBase58(identity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid owner address: %w", err)
	}

	resp, err := l.rpcClient.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{Mint: &l.mint},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get token accounts: %w", err)
	}

	var total uint64
	for _, account := range resp.Value {
		var tokenAccount token.Account
		decoder := bin.NewBinDecoder(account.Account.Data.GetBinary())
		if err := tokenAccount.UnmarshalWithDecoder(decoder); err != nil {
			log.Warn().Err(err).Str("account", account.Pubkey.String()).Msg("[SPL] failed to decode token account")
			continue
		}
		total += tokenAccount.Amount
	}

	return FromBaseUnits(total, l.decimals), nil
}

// TransferFrom moves tokens between two owners with the server wallet acting as delegate
func (l *SPLLedger) TransferFrom(ctx context.Context, from, to string, amount decimal.Decimal) error {
	owner, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return fmt.Errorf("invalid source address: %w", err)
	}
	return l.transfer(ctx, owner, to, amount)
}

// Transfer moves tokens out of the treasury token account
func (l *SPLLedger) Transfer(ctx context.Context, to string, amount decimal.Decimal) error {
	return l.transfer(ctx, l.wallet.PublicKey(), to, amount)
}

func (l *SPLLedger) transfer(ctx context.Context, owner solana.PublicKey, to string, amount decimal.Decimal) error {
	units, err := ToBaseUnits(amount, l.decimals)
	if err != nil {
		return err
	}

	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return fmt.Errorf("invalid destination address: %w", err)
	}

	source, _, err := solana.FindAssociatedTokenAddress(owner, l.mint)
	if err != nil {
		return fmt.Errorf("failed to derive source token account: %w", err)
	}
	destination, _, err := solana.FindAssociatedTokenAddress(recipient, l.mint)
	if err != nil {
		return fmt.Errorf("failed to derive destination token account: %w", err)
	}

	authority := l.wallet.PublicKey()
	var instructions []solana.Instruction

	exists, err := l.accountExists(ctx, destination)
	if err != nil {
		return err
	}
	if !exists {
		create, err := associatedtokenaccount.NewCreateInstruction(authority, recipient, l.mint).ValidateAndBuild()
		if err != nil {
			return fmt.Errorf("failed to build create account instruction: %w", err)
		}
		instructions = append(instructions, create)
	}

	transfer, err := token.NewTransferCheckedInstruction(
		units,
		l.decimals,
		source,
		l.mint,
		destination,
		authority,
		nil,
	).ValidateAndBuild()
	if err != nil {
		return fmt.Errorf("failed to build transfer instruction: %w", err)
	}
	instructions = append(instructions, transfer)

	sig, err := l.send(ctx, instructions)
	if err != nil {
		return err
	}

	log.Info().
		Str("signature", sig.String()).
		Str("from", owner.String()).
		Str("to", to).
		Str("amount", amount.String()).
		Msg("[SPL] transfer confirmed")
	return nil
}

func (l *SPLLedger) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := l.rpcClient.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read account %s: %w", account, err)
	}
	return true, nil
}

func (l *SPLLedger) send(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	recent, err := l.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	payer := l.wallet.PublicKey()
	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &l.wallet
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := l.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	if err := l.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (l *SPLLedger) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	pollCtx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		confirmed, err := l.checkSignature(pollCtx, sig)
		if err != nil || confirmed {
			return err
		}

		select {
		case <-pollCtx.Done():
			return l.finalCheck(sig)
		case <-ticker.C:
		}
	}
}

// finalCheck looks at the signature once more after the confirmation window
// closed. The transaction may still land, so an unconfirmed signature is
// logged for manual reconciliation against the ledger.
func (l *SPLLedger) finalCheck(sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(context.Background(), finalCheckTimeout)
	defer cancel()

	confirmed, err := l.checkSignature(ctx, sig)
	if err != nil {
		return err
	}
	if confirmed {
		log.Warn().Str("signature", sig.String()).Msg("[SPL] transaction confirmed after the confirmation timeout")
		return nil
	}

	log.Error().
		Str("signature", sig.String()).
		Dur("timeout", l.confirmTimeout).
		Msg("[SPL] transaction unconfirmed, reconcile manually")
	return fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig)
}

// checkSignature reports whether sig reached confirmed commitment. Polling
// errors count as not confirmed.
func (l *SPLLedger) checkSignature(ctx context.Context, sig solana.Signature) (bool, error) {
	status, err := l.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		log.Warn().Err(err).Str("signature", sig.String()).Msg("[SPL] failed to poll signature status")
		return false, nil
	}
	if len(status.Value) == 0 || status.Value[0] == nil {
		return false, nil
	}

	result := status.Value[0]
	if result.Err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, result.Err)
	}
	return result.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		result.ConfirmationStatus == rpc.ConfirmationStatusFinalized, nil
}

// ToBaseUnits converts a token amount into mint base units
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative: %s", amount)
	}
	shifted := amount.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s with %d decimals", ErrAmountPrecision, amount, decimals)
	}
	units := shifted.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("amount out of range: %s", amount)
	}
	return units.Uint64(), nil
}

// FromBaseUnits converts mint base units into a token amount
func FromBaseUnits(units uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals))
}
