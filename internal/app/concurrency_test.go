package app

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"fleetarbiter/internal/attest"
	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/types"
)

// signedEnvelope is harness.envelope without a *testing.T, for use off the
// test goroutine.
func signedEnvelope(cmd codec.Command, body any, key ed25519.PrivateKey) (codec.Envelope, error) {
	r, err := attest.DevProver{}.Prove(cmd, body)
	if err != nil {
		return codec.Envelope{}, err
	}
	return codec.Envelope{Cmd: cmd, Receipt: r, Signature: ed25519.Sign(key, r.Journal)}, nil
}

func applyOK(arb *Arbiter, cmd codec.Command, body any, key ed25519.PrivateKey) error {
	env, err := signedEnvelope(cmd, body, key)
	if err != nil {
		return err
	}
	if out := arb.Apply(context.Background(), env); !out.OK() {
		return fmt.Errorf("%s by %s: %s", cmd, out.Player, out.Reply)
	}
	return nil
}

// playRounds alternates fire and miss reports between a and b. Only this
// goroutine touches a and b.
func playRounds(arb *Arbiter, game string, a, b *testPlayer, rounds int) error {
	shooter, target := a, b
	for r := 0; r < rounds; r++ {
		pos := uint8(r)
		if err := applyOK(arb, codec.CmdFire, codec.FireJournal{
			GameID: game, Fleet: shooter.name, Board: shooter.board, Target: target.name, Pos: pos,
		}, shooter.key); err != nil {
			return err
		}
		next := attest.BoardCommitment([]uint8{pos}, fmt.Sprintf("%s/%d", target.name, r))
		if err := applyOK(arb, codec.CmdReport, codec.ReportJournal{
			GameID: game, Fleet: target.name, Report: reportMiss, Pos: pos, Board: target.board, NextBoard: next,
		}, target.key); err != nil {
			return err
		}
		target.board = next
		shooter, target = target, shooter
	}
	return nil
}

func TestConcurrent_ClaimRaceRecordsOneClaimant(t *testing.T) {
	h := newHarness(t)
	const n = 8
	players := make([]*testPlayer, n)
	for i := range players {
		players[i] = newTestPlayer(fmt.Sprintf("p%d", i))
		mustOk(t, h.join(players[i], "race"))
	}

	start := make(chan struct{})
	outs := make(chan Outcome, n)
	var wg sync.WaitGroup
	for _, p := range players {
		env := h.envelope(codec.CmdWin, codec.BaseJournal{GameID: "race", Fleet: p.name, Board: p.board}, p.key)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outs <- h.arb.Apply(context.Background(), env)
		}()
	}
	close(start)
	wg.Wait()
	close(outs)

	for out := range outs {
		mustOk(t, out)
	}
	require.NoError(t, h.arb.validate())

	gs := h.state("race", "p0")
	require.NotNil(t, gs.VictoryClaim)
	for _, p := range gs.Players {
		require.True(t, p.VictoryClaimed, p.Name)
	}

	claimed, contested := 0, 0
	for _, ev := range h.arb.Events().Recent() {
		switch ev.Kind {
		case types.EventTypeVictoryClaimed:
			claimed++
			require.Contains(t, ev.Message, gs.VictoryClaim.Claimant+" claims victory")
		case types.EventTypeVictoryContest:
			contested++
		}
	}
	require.Equal(t, 1, claimed)
	require.Equal(t, n-1, contested)

	h.clk.Add(h.arb.VictoryTimeout())
	require.Equal(t, 1, h.arb.Sweep())
	require.Nil(t, h.state("race", "p0").VictoryClaim)
}

func TestConcurrent_DuelsWithSweeperRunning(t *testing.T) {
	h := newHarness(t)
	const duels, rounds = 4, 10

	type duel struct {
		game string
		a, b *testPlayer
	}
	ds := make([]duel, duels)
	for i := range ds {
		d := duel{
			game: fmt.Sprintf("g%d", i),
			a:    newTestPlayer(fmt.Sprintf("a%d", i)),
			b:    newTestPlayer(fmt.Sprintf("b%d", i)),
		}
		mustOk(t, h.join(d.a, d.game))
		mustOk(t, h.join(d.b, d.game))
		ds[i] = d
	}
	claimer, rival := newTestPlayer("claimer"), newTestPlayer("rival")
	mustOk(t, h.join(claimer, "claims"))
	mustOk(t, h.join(rival, "claims"))

	ctx, cancel := context.WithCancel(context.Background())
	sweeperDone := make(chan error, 1)
	go func() { sweeperDone <- h.arb.RunSweeper(ctx) }()

	var g errgroup.Group
	for _, d := range ds {
		g.Go(func() error { return playRounds(h.arb, d.game, d.a, d.b, rounds) })
	}
	g.Go(func() error {
		if err := applyOK(h.arb, codec.CmdWin, codec.BaseJournal{GameID: "claims", Fleet: claimer.name, Board: claimer.board}, claimer.key); err != nil {
			return err
		}
		return applyOK(h.arb, codec.CmdWin, codec.BaseJournal{GameID: "claims", Fleet: rival.name, Board: rival.board}, rival.key)
	})
	// Stays inside the contest window so no claim settles mid-run.
	g.Go(func() error {
		for i := 0; i < 20; i++ {
			h.clk.Add(time.Second)
		}
		return nil
	})
	require.NoError(t, g.Wait())

	cancel()
	require.NoError(t, <-sweeperDone)
	require.NoError(t, h.arb.validate())

	for _, d := range ds {
		gs := h.state(d.game, d.a.name)
		require.Equal(t, d.a.name, gs.TurnHolder, d.game)
		require.Empty(t, gs.ReportOwedBy, d.game)
		require.True(t, gs.LockedForJoin, d.game)
	}
	gs := h.state("claims", "claimer")
	require.NotNil(t, gs.VictoryClaim)
	require.Equal(t, "claimer", gs.VictoryClaim.Claimant)
	require.Len(t, gs.Players, 2)
	require.True(t, gs.Players[0].VictoryClaimed)
	require.True(t, gs.Players[1].VictoryClaimed)

	m := h.arb.Metrics()
	require.Equal(t, float64(duels*rounds), testutil.ToFloat64(m.commands.WithLabelValues("Fire", "ok")))
	require.Equal(t, float64(duels*rounds), testutil.ToFloat64(m.commands.WithLabelValues("Report", "ok")))
	require.Zero(t, testutil.ToFloat64(m.commands.WithLabelValues("Fire", "rejected")))
}
