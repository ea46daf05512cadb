package app

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/stretchr/testify/require"

	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/types"
)

func envTx(t *testing.T, env codec.Envelope) []byte {
	t.Helper()
	b, err := env.Encode()
	require.NoError(t, err)
	return b
}

func joinTx(t *testing.T, h *harness, p *testPlayer, game string) []byte {
	t.Helper()
	env := h.envelope(codec.CmdJoin, codec.BaseJournal{GameID: game, Fleet: p.name, Board: p.board}, p.key)
	env.PublicKey = p.pub()
	return envTx(t, env)
}

func finalize(t *testing.T, x *ABCIApp, height int64, at time.Time, txs ...[]byte) *abci.FinalizeBlockResponse {
	t.Helper()
	res, err := x.FinalizeBlock(context.Background(), &abci.FinalizeBlockRequest{Height: height, Time: at, Txs: txs})
	require.NoError(t, err)
	require.Len(t, res.TxResults, len(txs))
	return res
}

func TestABCI_CheckTx(t *testing.T) {
	h := newHarness(t)
	x := NewABCIApp(h.arb)

	res, err := x.CheckTx(context.Background(), &abci.CheckTxRequest{Tx: []byte("nope")})
	require.NoError(t, err)
	require.Equal(t, types.ErrInvalidRequest.ABCICode(), res.Code)

	res, err = x.CheckTx(context.Background(), &abci.CheckTxRequest{Tx: joinTx(t, h, newTestPlayer("alice"), "g1")})
	require.NoError(t, err)
	require.Zero(t, res.Code)
	require.Empty(t, h.arb.Sessions(), "CheckTx must not execute")
}

func TestABCI_FinalizeBlockUsesBlockTime(t *testing.T) {
	h := newHarness(t)
	x := NewABCIApp(h.arb)
	alice, bob := newTestPlayer("alice"), newTestPlayer("bob")
	blockTime := time.Unix(1_800_000_000, 0).UTC()

	res := finalize(t, x, 1, blockTime,
		joinTx(t, h, alice, "g1"),
		joinTx(t, h, bob, "g1"),
		envTx(t, h.envelope(codec.CmdFire, codec.FireJournal{GameID: "g1", Fleet: "bob", Board: bob.board, Target: "alice", Pos: 1}, bob.key)),
		envTx(t, h.envelope(codec.CmdWin, codec.BaseJournal{GameID: "g1", Fleet: "alice", Board: alice.board}, alice.key)),
	)
	require.Zero(t, res.TxResults[0].Code)
	require.Zero(t, res.TxResults[1].Code)
	require.Equal(t, types.ErrTurnViolation.ABCICode(), res.TxResults[2].Code)
	require.Equal(t, types.ModuleName, res.TxResults[2].Codespace)
	require.Equal(t, "Not your turn", res.TxResults[2].Log)
	require.Zero(t, res.TxResults[3].Code)
	require.Equal(t, "Win", res.TxResults[3].Events[0].Type)
	require.Equal(t, h.arb.StateHash(), res.AppHash)

	gs := h.state("g1", "alice")
	require.Equal(t, blockTime, gs.VictoryClaim.ClaimedAt)
	require.Equal(t, blockTime, gs.Players[0].LastActiveAt)

	// The wall clock never moves; the next block's time settles the claim.
	finalize(t, x, 2, blockTime.Add(10*time.Second))
	require.Equal(t, []string{"g1"}, h.arb.Sessions())

	res = finalize(t, x, 3, blockTime.Add(30*time.Second))
	require.Empty(t, h.arb.Sessions())

	info, err := x.Info(context.Background(), &abci.InfoRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(3), info.LastBlockHeight)
	require.Equal(t, res.AppHash, info.LastBlockAppHash)
}

func TestABCI_Query(t *testing.T) {
	h := newHarness(t)
	x := NewABCIApp(h.arb)
	alice, bob := newTestPlayer("alice"), newTestPlayer("bob")
	finalize(t, x, 1, testEpoch, joinTx(t, h, alice, "g2"), joinTx(t, h, bob, "g1"))

	q := func(path string) *abci.QueryResponse {
		res, err := x.Query(context.Background(), &abci.QueryRequest{Path: path})
		require.NoError(t, err)
		return res
	}

	res := q("/sessions")
	require.Zero(t, res.Code)
	var ids []string
	require.NoError(t, json.Unmarshal(res.Value, &ids))
	require.Equal(t, []string{"g1", "g2"}, ids)
	require.Equal(t, int64(1), res.Height)

	res = q("/session/g1")
	require.Zero(t, res.Code)
	var sess map[string]any
	require.NoError(t, json.Unmarshal(res.Value, &sess))
	require.Equal(t, "bob", sess["turnHolder"])

	res = q("/gamestate/g2/alice")
	require.Zero(t, res.Code)
	var gs GameState
	require.NoError(t, json.Unmarshal(res.Value, &gs))
	require.Equal(t, "alice", *gs.NextPlayer)

	require.Equal(t, types.ErrSessionNotFound.ABCICode(), q("/session/zz").Code)
	require.Equal(t, types.ErrPlayerNotFound.ABCICode(), q("/gamestate/g2/bob").Code)
	require.Equal(t, types.ErrInvalidRequest.ABCICode(), q("/gamestate/g2").Code)
	require.Equal(t, types.ErrInvalidRequest.ABCICode(), q("/nope").Code)
}

func TestABCI_ReplicasIgnoreWallClock(t *testing.T) {
	ha, hb := newHarness(t), newHarness(t)
	xa, xb := NewABCIApp(ha.arb), NewABCIApp(hb.arb)
	alice, bob := newTestPlayer("alice"), newTestPlayer("bob")
	blockTime := testEpoch.Add(time.Hour)

	block1 := [][]byte{
		joinTx(t, ha, alice, "g1"),
		joinTx(t, ha, bob, "g1"),
		envTx(t, ha.envelope(codec.CmdWin, codec.BaseJournal{GameID: "g1", Fleet: "alice", Board: alice.board}, alice.key)),
	}
	ra := finalize(t, xa, 1, blockTime, block1...)
	rb := finalize(t, xb, 1, blockTime, block1...)
	require.Equal(t, ra.AppHash, rb.AppHash)

	// One replica's wall clock runs far ahead and it tries to sweep and to
	// run a command outside a block.
	hb.clk.Add(2 * time.Hour)
	require.Zero(t, hb.arb.Sweep())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, hb.arb.RunSweeper(ctx))
	out := hb.arb.Apply(context.Background(), hb.envelope(codec.CmdWin, codec.BaseJournal{GameID: "g1", Fleet: "bob", Board: bob.board}, bob.key))
	mustReject(t, out, types.ErrInvalidRequest, "Commands must be submitted as transactions")
	require.True(t, strings.HasPrefix(hb.arb.ExecuteRaw(context.Background(), []byte("{}")), "Commands must be submitted"))

	ra = finalize(t, xa, 2, blockTime.Add(10*time.Second))
	rb = finalize(t, xb, 2, blockTime.Add(10*time.Second))
	require.Equal(t, ra.AppHash, rb.AppHash)
	require.Equal(t, []string{"g1"}, ha.arb.Sessions())
	require.Equal(t, []string{"g1"}, hb.arb.Sessions())
}

func TestABCI_QueryMeasuresClaimAtBlockTime(t *testing.T) {
	h := newHarness(t)
	x := NewABCIApp(h.arb)
	alice, bob := newTestPlayer("alice"), newTestPlayer("bob")
	blockTime := testEpoch.Add(time.Hour)

	finalize(t, x, 1, blockTime,
		joinTx(t, h, alice, "g1"),
		joinTx(t, h, bob, "g1"),
		envTx(t, h.envelope(codec.CmdWin, codec.BaseJournal{GameID: "g1", Fleet: "alice", Board: alice.board}, alice.key)),
	)
	finalize(t, x, 2, blockTime.Add(10*time.Second))

	// The mock wall clock is still an hour behind the chain.
	res, err := x.Query(context.Background(), &abci.QueryRequest{Path: "/gamestate/g1/bob"})
	require.NoError(t, err)
	require.Zero(t, res.Code)
	var gs GameState
	require.NoError(t, json.Unmarshal(res.Value, &gs))
	require.Equal(t, int64(20), gs.ClaimRemaining)
}
