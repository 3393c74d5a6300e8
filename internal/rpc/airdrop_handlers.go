package rpc

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/history"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
)

func (s *Server) newEngine(w wallet.Wallet) *airdrop.Engine {
	e := airdrop.New(w)
	e.Params = s.params
	e.Sink = s.sink
	return e
}

// resolvePlan checks the wallet and resolves the plan against the
// current holdings.
func (s *Server) resolvePlan(req *Request) (*wallet.Local, airdrop.Config, PlanParam, *Error) {
	var params PlanParam
	if err := parseParams(req, &params); err != nil {
		return nil, airdrop.Config{}, params, err
	}
	w, err := s.connectedWallet()
	if err != nil {
		return nil, airdrop.Config{}, params, errorFor("airdrop", err)
	}
	cfg, err := params.Plan.Resolve(s.portfolio.Inventory())
	if err != nil {
		return nil, airdrop.Config{}, params, errorFor("resolve plan", err)
	}
	return w, cfg, params, nil
}

func (s *Server) previouslySent(ctx context.Context, digest string) ([]history.Entry, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.FindByDigest(ctx, digest)
}

func (s *Server) handleAirdropPreview(ctx context.Context, req *Request) (interface{}, *Error) {
	w, cfg, _, rpcErr := s.resolvePlan(req)
	if rpcErr != nil {
		return nil, rpcErr
	}

	digest, err := airdrop.Digest(cfg)
	if err != nil {
		return nil, errorFor("digest", err)
	}
	res, err := s.newEngine(w).Assemble(ctx, cfg)
	if err != nil {
		return nil, errorFor("assemble", err)
	}
	txID, err := res.Tx.ID()
	if err != nil {
		return nil, errorFor("tx id", err)
	}
	raw, err := res.Tx.Bytes()
	if err != nil {
		return nil, errorFor("serialize", err)
	}
	prior, err := s.previouslySent(ctx, digest)
	if err != nil {
		return nil, errorFor("history", err)
	}

	return &PreviewResult{
		Digest:         digest,
		TxID:           txID,
		Summary:        res.Summary,
		Skipped:        res.Skipped,
		RecommendedFee: res.RecommendedFee,
		Rebuilt:        res.Rebuilt,
		Size:           len(raw),
		PreviouslySent: prior,
	}, nil
}

func (s *Server) handleAirdropSend(ctx context.Context, req *Request) (interface{}, *Error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	w, cfg, params, rpcErr := s.resolvePlan(req)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if !params.Force {
		digest, err := airdrop.Digest(cfg)
		if err != nil {
			return nil, errorFor("digest", err)
		}
		prior, err := s.previouslySent(ctx, digest)
		if err != nil {
			return nil, errorFor("history", err)
		}
		if len(prior) > 0 {
			return nil, &Error{
				Code:    CodeDuplicate,
				Message: fmt.Sprintf("plan already sent in tx %s (use force to resend)", prior[len(prior)-1].TxID),
				Data:    prior,
			}
		}
	}

	receipt, err := s.newEngine(w).Send(ctx, cfg)
	if err != nil {
		return nil, errorFor("send", err)
	}
	return receipt, nil
}

func (s *Server) handleAirdropHistory(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.history == nil {
		return nil, &Error{Code: CodeInternalError, Message: "history not enabled"}
	}

	var params HistoryParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}

	var (
		entries []history.Entry
		err     error
	)
	if params.Digest != "" {
		entries, err = s.history.FindByDigest(ctx, params.Digest)
	} else {
		limit := params.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		entries, err = s.history.List(ctx, min(limit, maxHistoryLimit))
	}
	if err != nil {
		return nil, errorFor("history", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return &HistoryResult{Entries: entries}, nil
}
