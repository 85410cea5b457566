package blockchain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"
)

// DiagnosticResult holds the result of a Solana connectivity diagnostic
type DiagnosticResult struct {
	RPCConnected    bool   `json:"rpc_connected"`
	RPCURL          string `json:"rpc_url"`
	RPCError        string `json:"rpc_error,omitempty"`
	LatestBlockhash string `json:"latest_blockhash,omitempty"`
	Wallet          string `json:"wallet"`
	Mint            string `json:"mint"`
	MintDecimals    uint8  `json:"mint_decimals"`
	MintError       string `json:"mint_error,omitempty"`
	DecimalsMatch   bool   `json:"decimals_match"`
	TreasuryAccount string `json:"treasury_account,omitempty"`
	TreasuryBalance string `json:"treasury_balance,omitempty"`
	TreasuryError   string `json:"treasury_error,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// Healthy reports whether the ledger can be used for governance transfers
func (r *DiagnosticResult) Healthy() bool {
	return r.RPCConnected && r.MintError == "" && r.DecimalsMatch
}

// RunDiagnostics checks RPC connectivity, the configured mint and the treasury token account
func (l *SPLLedger) RunDiagnostics(ctx context.Context) *DiagnosticResult {
	result := &DiagnosticResult{
		RPCURL:    l.rpcURL,
		Wallet:    l.Treasury(),
		Mint:      l.mint.String(),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	// 1. RPC connectivity
	blockhash, err := l.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		result.RPCError = err.Error()
		log.Error().Err(err).Str("rpc", l.rpcURL).Msg("[Diagnostics] RPC failed")
		return result
	}
	result.RPCConnected = true
	result.LatestBlockhash = blockhash.Value.Blockhash.String()

	// 2. Mint precision must match the configured decimals
	supply, err := l.rpcClient.GetTokenSupply(ctx, l.mint, rpc.CommitmentConfirmed)
	if err != nil {
		result.MintError = err.Error()
		log.Error().Err(err).Str("mint", result.Mint).Msg("[Diagnostics] mint lookup failed")
	} else {
		result.MintDecimals = supply.Value.Decimals
		result.DecimalsMatch = supply.Value.Decimals == l.decimals
		if !result.DecimalsMatch {
			log.Error().
				Uint8("configured", l.decimals).
				Uint8("mint", supply.Value.Decimals).
				Msg("[Diagnostics] token decimals mismatch")
		}
	}

	// 3. Treasury token account
	account, _, err := solana.FindAssociatedTokenAddress(l.wallet.PublicKey(), l.mint)
	if err != nil {
		result.TreasuryError = err.Error()
		return result
	}
	result.TreasuryAccount = account.String()

	balance, err := l.BalanceOf(ctx, result.Wallet)
	if err != nil {
		result.TreasuryError = err.Error()
	} else {
		result.TreasuryBalance = balance.String()
	}

	log.Info().
		Bool("healthy", result.Healthy()).
		Str("treasury_account", result.TreasuryAccount).
		Str("treasury_balance", result.TreasuryBalance).
		Msg("[Diagnostics] SPL ledger checked")

	return result
}
