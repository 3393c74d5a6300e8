package rpc

import (
	"time"

	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/history"
	"github.com/Klingon-tech/klingdrop/internal/portfolio"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000

	// Application codes.
	CodePrecondition = -32001 // wallet not connected, no recipients, no funds
	CodeDuplicate    = -32002 // plan already sent
	CodeRejected     = -32003 // signing rejected or superseded
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// WalletCreateParam is used by wallet_create.
type WalletCreateParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// WalletImportParam is used by wallet_import.
type WalletImportParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Mnemonic string `json:"mnemonic"`
}

// WalletConnectParam is used by wallet_connect.
type WalletConnectParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// HoldingsParam is used by wallet_holdings.
type HoldingsParam struct {
	Refresh bool `json:"refresh,omitempty"`
}

// PlanParam is used by airdrop_preview and airdrop_send.
type PlanParam struct {
	Plan airdrop.PlanFile `json:"plan"`
	// Force sends a plan whose digest is already in the history.
	Force bool `json:"force,omitempty"`
}

// HistoryParam is used by airdrop_history.
type HistoryParam struct {
	Limit  int    `json:"limit,omitempty"`
	Digest string `json:"digest,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// WalletCreateResult is returned by wallet_create and wallet_import.
type WalletCreateResult struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Mnemonic string `json:"mnemonic,omitempty"` // Only on create; shown once.
}

// WalletInfo describes a keystore wallet.
type WalletInfo struct {
	Name      string    `json:"name"`
	Network   string    `json:"network"`
	Addresses uint32    `json:"addresses"`
	CreatedAt time.Time `json:"createdAt"`
}

// WalletListResult is returned by wallet_list.
type WalletListResult struct {
	Wallets []WalletInfo `json:"wallets"`
}

// WalletStatusResult is returned by wallet_status and wallet_connect.
type WalletStatusResult struct {
	Connected   bool             `json:"connected"`
	Name        string           `json:"name,omitempty"`
	Accounts    []wallet.Account `json:"accounts,omitempty"`
	Balance     uint64           `json:"balance"`
	Boxes       int              `json:"boxes"`
	Generation  uint64           `json:"generation"`
	RefreshedAt time.Time        `json:"refreshedAt,omitempty"`
}

// HoldingsResult is returned by wallet_holdings.
type HoldingsResult = portfolio.Snapshot

// PreviewResult is returned by airdrop_preview.
type PreviewResult struct {
	Digest         string          `json:"digest"`
	TxID           string          `json:"txId"`
	Summary        airdrop.Summary `json:"summary"`
	Skipped        []airdrop.Skip  `json:"skipped,omitempty"`
	RecommendedFee uint64          `json:"recommendedFee"`
	Rebuilt        bool            `json:"rebuilt"`
	Size           int             `json:"size"`
	// PreviouslySent lists history entries with the same digest.
	PreviouslySent []history.Entry `json:"previouslySent,omitempty"`
}

// HistoryResult is returned by airdrop_history.
type HistoryResult struct {
	Entries []history.Entry `json:"entries"`
}
