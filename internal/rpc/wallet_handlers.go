package rpc

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// walletNameRe keeps wallet names usable as file names.
var walletNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func (s *Server) requireWallet() *Error {
	if s.keystore == nil {
		return &Error{Code: CodeInternalError, Message: "keystore not enabled"}
	}
	return nil
}

func checkCredentials(name, password string) *Error {
	if name == "" || password == "" {
		return &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}
	if !walletNameRe.MatchString(name) {
		return &Error{Code: CodeInvalidParams, Message: "wallet name may only contain letters, digits, '-' and '_'"}
	}
	return nil
}

func (s *Server) handleWalletCreate(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletCreateParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if err := checkCredentials(params.Name, params.Password); err != nil {
		return nil, err
	}

	mnemonic, genErr := wallet.GenerateMnemonic()
	if genErr != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("generate mnemonic: %v", genErr)}
	}
	addr, rpcErr := s.storeMnemonic(params.Name, params.Password, mnemonic)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.logger.Info().Str("wallet", params.Name).Str("address", addr.String()).Msg("Wallet created")
	return &WalletCreateResult{Name: params.Name, Address: addr.String(), Mnemonic: mnemonic}, nil
}

func (s *Server) handleWalletImport(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletImportParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	params.Mnemonic = wallet.NormalizeMnemonic(params.Mnemonic)
	if err := checkCredentials(params.Name, params.Password); err != nil {
		return nil, err
	}
	if !wallet.ValidateMnemonic(params.Mnemonic) {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid mnemonic"}
	}

	addr, rpcErr := s.storeMnemonic(params.Name, params.Password, params.Mnemonic)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.logger.Info().Str("wallet", params.Name).Str("address", addr.String()).Msg("Wallet imported")
	return &WalletCreateResult{Name: params.Name, Address: addr.String()}, nil
}

// storeMnemonic encrypts the mnemonic's seed into the keystore and
// returns the first receive address.
func (s *Server) storeMnemonic(name, password, mnemonic string) (types.Address, *Error) {
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return types.Address{}, &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive seed: %v", err)}
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive master key: %v", err)}
	}
	child, err := master.DeriveAddress(0, 0)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive address: %v", err)}
	}
	addr, err := child.Address(s.network)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive address: %v", err)}
	}

	params := s.encParams
	if params.Memory == 0 {
		params = wallet.DefaultParams()
	}
	if err := s.keystore.Create(name, seed, []byte(password), s.network, params); err != nil {
		return types.Address{}, errorFor("create wallet", err)
	}
	if s.addresses > 1 {
		if err := s.keystore.SetAddressCount(name, s.addresses); err != nil {
			return types.Address{}, &Error{Code: CodeInternalError, Message: fmt.Sprintf("set address count: %v", err)}
		}
	}
	return addr, nil
}

func (s *Server) handleWalletList(_ *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	names, listErr := s.keystore.List()
	if listErr != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("list wallets: %v", listErr)}
	}

	result := &WalletListResult{Wallets: []WalletInfo{}}
	for _, name := range names {
		info, err := s.keystore.Info(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("wallet", name).Msg("Skipping unreadable wallet file")
			continue
		}
		result.Wallets = append(result.Wallets, WalletInfo{
			Name:      info.Name,
			Network:   networkLabel(info.Network),
			Addresses: info.Addresses,
			CreatedAt: info.CreatedAt,
		})
	}
	return result, nil
}

func (s *Server) handleWalletConnect(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletConnectParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if err := checkCredentials(params.Name, params.Password); err != nil {
		return nil, err
	}

	info, err := s.keystore.Info(params.Name)
	if err != nil {
		return nil, errorFor("open wallet", err)
	}
	if info.Network != s.network {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("wallet %q is a %s wallet, daemon runs %s",
			params.Name, networkLabel(info.Network), networkLabel(s.network))}
	}

	w, err := wallet.Open(s.keystore, params.Name, []byte(params.Password), s.chain)
	if err != nil {
		return nil, errorFor("open wallet", err)
	}
	if err := w.Connect(ctx); err != nil {
		w.Close()
		return nil, errorFor("connect wallet", err)
	}

	// Wait for an in-flight airdrop before swapping wallets.
	s.sendMu.Lock()
	s.mu.Lock()
	old := s.local
	s.local = w
	s.walletName = params.Name
	s.mu.Unlock()
	s.sendMu.Unlock()
	if old != nil {
		old.Close()
	}

	if _, err := s.portfolio.Connect(ctx, w); err != nil {
		return nil, errorFor("load holdings", err)
	}
	return s.status(), nil
}

func (s *Server) handleWalletDisconnect(_ *Request) (interface{}, *Error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.portfolio.Reset()
	s.closeWallet()
	return s.status(), nil
}

func (s *Server) handleWalletStatus(_ *Request) (interface{}, *Error) {
	return s.status(), nil
}

func (s *Server) handleWalletHoldings(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HoldingsParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	if _, err := s.connectedWallet(); err != nil {
		return nil, errorFor("holdings", err)
	}
	if params.Refresh {
		snap, err := s.portfolio.Refresh(ctx)
		if err != nil {
			return nil, errorFor("refresh holdings", err)
		}
		return snap, nil
	}
	snap := s.portfolio.Snapshot()
	return &snap, nil
}

// connectedWallet returns the open wallet.
func (s *Server) connectedWallet() (*wallet.Local, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil || !s.local.Connected() {
		return nil, airdrop.ErrWalletNotConnected
	}
	return s.local, nil
}

func (s *Server) closeWallet() {
	s.mu.Lock()
	w := s.local
	s.local = nil
	s.walletName = ""
	s.mu.Unlock()
	if w != nil {
		w.Close()
		s.logger.Info().Msg("Wallet disconnected")
	}
}

func (s *Server) status() *WalletStatusResult {
	snap := s.portfolio.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	res := &WalletStatusResult{
		Connected:   s.local != nil && s.local.Connected(),
		Name:        s.walletName,
		Balance:     snap.Balance,
		Boxes:       snap.Boxes,
		Generation:  snap.Generation,
		RefreshedAt: snap.RefreshedAt,
	}
	if s.local != nil {
		res.Accounts = s.local.Accounts()
	}
	return res
}

func networkLabel(n types.Network) string {
	if n == types.Testnet {
		return "testnet"
	}
	return "mainnet"
}
