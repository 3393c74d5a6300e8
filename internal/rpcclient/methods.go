package rpcclient

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/history"
	"github.com/Klingon-tech/klingdrop/internal/rpc"
)

// WalletCreate creates a new wallet and returns its mnemonic.
func (c *Client) WalletCreate(ctx context.Context, name, password string) (*rpc.WalletCreateResult, error) {
	var res rpc.WalletCreateResult
	err := c.CallContext(ctx, "wallet_create", rpc.WalletCreateParam{Name: name, Password: password}, &res)
	return &res, err
}

// WalletImport restores a wallet from a mnemonic.
func (c *Client) WalletImport(ctx context.Context, name, password, mnemonic string) (*rpc.WalletCreateResult, error) {
	var res rpc.WalletCreateResult
	err := c.CallContext(ctx, "wallet_import", rpc.WalletImportParam{Name: name, Password: password, Mnemonic: mnemonic}, &res)
	return &res, err
}

// WalletList lists the daemon's keystore.
func (c *Client) WalletList(ctx context.Context) ([]rpc.WalletInfo, error) {
	var res rpc.WalletListResult
	if err := c.CallContext(ctx, "wallet_list", nil, &res); err != nil {
		return nil, err
	}
	return res.Wallets, nil
}

// WalletConnect unlocks a wallet in the daemon.
func (c *Client) WalletConnect(ctx context.Context, name, password string) (*rpc.WalletStatusResult, error) {
	var res rpc.WalletStatusResult
	err := c.CallContext(ctx, "wallet_connect", rpc.WalletConnectParam{Name: name, Password: password}, &res)
	return &res, err
}

// WalletDisconnect locks the connected wallet.
func (c *Client) WalletDisconnect(ctx context.Context) error {
	return c.CallContext(ctx, "wallet_disconnect", nil, nil)
}

// WalletStatus reports the connection state.
func (c *Client) WalletStatus(ctx context.Context) (*rpc.WalletStatusResult, error) {
	var res rpc.WalletStatusResult
	err := c.CallContext(ctx, "wallet_status", nil, &res)
	return &res, err
}

// Holdings returns the portfolio snapshot, refreshing it first if asked.
func (c *Client) Holdings(ctx context.Context, refresh bool) (*rpc.HoldingsResult, error) {
	var res rpc.HoldingsResult
	err := c.CallContext(ctx, "wallet_holdings", rpc.HoldingsParam{Refresh: refresh}, &res)
	return &res, err
}

// Preview assembles a plan without signing it.
func (c *Client) Preview(ctx context.Context, plan *airdrop.PlanFile) (*rpc.PreviewResult, error) {
	var res rpc.PreviewResult
	err := c.CallContext(ctx, "airdrop_preview", rpc.PlanParam{Plan: *plan}, &res)
	return &res, err
}

// Send signs and submits a plan.
func (c *Client) Send(ctx context.Context, plan *airdrop.PlanFile, force bool) (*airdrop.Receipt, error) {
	var res airdrop.Receipt
	err := c.CallContext(ctx, "airdrop_send", rpc.PlanParam{Plan: *plan, Force: force}, &res)
	return &res, err
}

// History lists past airdrops, newest first. A non-empty digest filters by plan.
func (c *Client) History(ctx context.Context, limit int, digest string) ([]history.Entry, error) {
	var res rpc.HistoryResult
	if err := c.CallContext(ctx, "airdrop_history", rpc.HistoryParam{Limit: limit, Digest: digest}, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// Duplicates returns the earlier sends carried by a duplicate-plan error.
func Duplicates(err error) ([]history.Entry, bool) {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != rpc.CodeDuplicate {
		return nil, false
	}
	var entries []history.Entry
	if len(rpcErr.Data) > 0 {
		_ = json.Unmarshal(rpcErr.Data, &entries)
	}
	return entries, true
}
