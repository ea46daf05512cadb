package app

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"

	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/types"
)

// ABCIApp serves the arbiter as a CometBFT application. Transactions are
// JSON envelopes; block time replaces the wall clock so every replica reaches
// the same state. Wrapping an arbiter makes it block-driven: wall-clock
// commands and sweeps no longer touch it.
type ABCIApp struct {
	*abci.BaseApplication

	arb *Arbiter

	mu        sync.Mutex
	height    int64
	lastHash  []byte
	blockTime time.Time
}

func NewABCIApp(arb *Arbiter) *ABCIApp {
	arb.blockDriven.Store(true)
	return &ABCIApp{
		BaseApplication: abci.NewBaseApplication(),
		arb:             arb,
		lastHash:        arb.StateHash(),
	}
}

func (x *ABCIApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "fleetarbiter",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  x.height,
		LastBlockAppHash: x.lastHash,
	}, nil
}

func (x *ABCIApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	if _, err := codec.DecodeEnvelope(req.Tx); err != nil {
		return &abci.CheckTxResponse{
			Code:      types.ErrInvalidRequest.ABCICode(),
			Codespace: types.ErrInvalidRequest.Codespace(),
			Log:       err.Error(),
		}, nil
	}
	// Receipts and signatures are checked when the tx executes.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (x *ABCIApp) FinalizeBlock(ctx context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	results := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, tx := range req.Txs {
		out := x.arb.applyRawAt(ctx, tx, req.Time)
		results = append(results, execResult(out))
	}
	if n := x.arb.sweepAt(req.Time); n > 0 {
		x.arb.logger.Debug("swept victory claims", "height", req.Height, "resolved", n)
	}
	if err := x.arb.validate(); err != nil {
		x.arb.logger.Error("session invariant violated", "height", req.Height, "err", err)
	}

	x.height = req.Height
	x.blockTime = req.Time
	x.lastHash = x.arb.StateHash()

	return &abci.FinalizeBlockResponse{
		TxResults: results,
		AppHash:   x.lastHash,
	}, nil
}

// Commit is a no-op: sessions live in memory only.
func (x *ABCIApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	return &abci.CommitResponse{}, nil
}

// Query paths:
//   - /sessions
//   - /session/<id>
//   - /gamestate/<id>/<player>
func (x *ABCIApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	x.mu.Lock()
	height, blockTime := x.height, x.blockTime
	x.mu.Unlock()

	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/sessions":
		b, _ := json.Marshal(x.arb.Sessions())
		return &abci.QueryResponse{Value: b, Height: height}, nil

	case strings.HasPrefix(path, "/session/"):
		id := strings.TrimPrefix(path, "/session/")
		x.arb.mu.Lock()
		sess := x.arb.st.Session(id)
		var b []byte
		if sess != nil {
			b, _ = json.Marshal(sess)
		}
		x.arb.mu.Unlock()
		if sess == nil {
			return queryError(types.ErrSessionNotFound.ABCICode(), "session not found", height), nil
		}
		return &abci.QueryResponse{Value: b, Height: height}, nil

	case strings.HasPrefix(path, "/gamestate/"):
		parts := strings.Split(strings.TrimPrefix(path, "/gamestate/"), "/")
		if len(parts) != 2 {
			return queryError(types.ErrInvalidRequest.ABCICode(), "expected /gamestate/<session>/<player>", height), nil
		}
		// Claim windows are measured against the last block, not the wall clock.
		gs, err := x.arb.gameStateAt(parts[0], parts[1], blockTime)
		if err != nil {
			_, code := Outcome{Err: err}.Code()
			return queryError(code, err.Error(), height), nil
		}
		b, _ := json.Marshal(gs)
		return &abci.QueryResponse{Value: b, Height: height}, nil

	default:
		return queryError(types.ErrInvalidRequest.ABCICode(), "unknown query path", height), nil
	}
}

func queryError(code uint32, log string, height int64) *abci.QueryResponse {
	return &abci.QueryResponse{Code: code, Codespace: types.ModuleName, Log: log, Height: height}
}

func execResult(out Outcome) *abci.ExecTxResult {
	if out.Err != nil {
		codespace, code := out.Code()
		return &abci.ExecTxResult{Code: code, Codespace: codespace, Log: out.Reply}
	}
	return &abci.ExecTxResult{
		Code: 0,
		Log:  out.Reply,
		Events: []abci.Event{{
			Type: out.Cmd.String(),
			Attributes: []abci.EventAttribute{
				{Key: "player", Value: out.Player, Index: true},
				{Key: "session", Value: out.Session, Index: true},
			},
		}},
	}
}
