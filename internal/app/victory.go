package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/state"
	"fleetarbiter/internal/types"
)

// Victory arbitration runs per session, independently of turns:
//
//	Idle -> Claimed (first claim) -> Contested (more claimants) -> resolved
//
// Resolution happens once the window has elapsed, either when a command
// touches the session or on the next sweep. A single claimant wins and the
// session is deleted; otherwise every claim is cleared.

// sessionFor looks up a session and settles an elapsed claim on it. Callers
// hold mu.
func (a *Arbiter) sessionFor(id string, now time.Time) (*state.Session, error) {
	sess := a.st.Session(id)
	if sess == nil {
		return nil, reject(types.ErrSessionNotFound, "Game not found")
	}
	if winner, over := a.settleElapsedClaim(sess, now); over {
		return nil, gameOver(winner)
	}
	return sess, nil
}

// settleElapsedClaim resolves the claim on sess once its window has closed.
// over reports that the session was won and deleted. Callers hold mu.
func (a *Arbiter) settleElapsedClaim(sess *state.Session, now time.Time) (winner string, over bool) {
	if rem, ok := sess.ClaimRemaining(now); ok && rem == 0 {
		return a.resolveClaim(sess)
	}
	return "", false
}

func gameOver(winner string) error {
	return reject(types.ErrSessionNotFound, "Game over, %s won", winner)
}

// requireNoContest rejects while a claim window is still open.
func requireNoContest(sess *state.Session, now time.Time) error {
	rem, ok := sess.ClaimRemaining(now)
	if !ok || rem == 0 {
		return nil
	}
	secs := int64((rem + time.Second - 1) / time.Second)
	return reject(types.ErrTurnViolation, "Victory claim pending, %d seconds remaining", secs)
}

// resolveClaim settles an elapsed claim. Callers hold mu.
func (a *Arbiter) resolveClaim(sess *state.Session) (winner string, won bool) {
	claimants := sess.Claimants()
	if len(claimants) == 1 {
		winner = claimants[0]
		a.st.Delete(sess.ID)
		a.sessionCountChanged()
		a.metrics.victories.WithLabelValues("awarded").Inc()
		a.emit(types.EventTypeVictoryAwarded, sess.ID, fmt.Sprintf("%s won session %s", winner, sess.ID))
		a.logger.Info("victory awarded", "session", sess.ID, "winner", winner)
		return winner, true
	}

	sess.ClearClaims()
	a.metrics.victories.WithLabelValues("voided").Inc()
	msg := fmt.Sprintf("Victory claim in session %s voided", sess.ID)
	if len(claimants) > 1 {
		msg = fmt.Sprintf("Victory claim in session %s voided, contested by %s", sess.ID, strings.Join(claimants, ", "))
	}
	a.emit(types.EventTypeVictoryVoided, sess.ID, msg)
	a.logger.Info("victory voided", "session", sess.ID, "claimants", len(claimants))
	return "", false
}

// handleClaimVictory does not need the turn; a claim can be made at any point
// of the turn cycle.
func (a *Arbiter) handleClaimVictory(env codec.Envelope, j codec.BaseJournal, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, err := a.sessionFor(j.GameID, now)
	if err != nil {
		return err
	}
	p, err := requireMember(sess, j.Fleet, "Player not found")
	if err != nil {
		return err
	}
	if err := requirePlayerAuth(p, env); err != nil {
		return authRejection(err)
	}
	if err := requireCommitment(p, j.Board); err != nil {
		return err
	}

	switch {
	case sess.VictoryClaim == nil:
		sess.VictoryClaim = &state.VictoryClaim{Claimant: j.Fleet, ClaimedAt: now}
		p.VictoryClaimed = true
		a.emit(types.EventTypeVictoryClaimed, sess.ID, fmt.Sprintf("%s claims victory in session %s, %d seconds to contest",
			j.Fleet, sess.ID, int64(sess.VictoryTimeout/time.Second)))
	case p.VictoryClaimed:
		return reject(types.ErrVictoryConflict, "Victory already claimed")
	default:
		p.VictoryClaimed = true
		a.emit(types.EventTypeVictoryContest, sess.ID, fmt.Sprintf("%s contests the victory claim of %s in session %s",
			j.Fleet, sess.VictoryClaim.Claimant, sess.ID))
	}
	return nil
}

// Sweep resolves every session whose claim window has elapsed and returns
// how many it resolved. A block-driven arbiter sweeps in FinalizeBlock only.
func (a *Arbiter) Sweep() int {
	if a.BlockDriven() {
		return 0
	}
	return a.sweepAt(a.clock.Now())
}

func (a *Arbiter) sweepAt(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, id := range a.st.SessionIDs() {
		sess := a.st.Session(id)
		if rem, ok := sess.ClaimRemaining(now); ok && rem == 0 {
			a.resolveClaim(sess)
			n++
		}
	}
	return n
}

// RunSweeper sweeps every sweep interval until ctx is done.
func (a *Arbiter) RunSweeper(ctx context.Context) error {
	if a.BlockDriven() {
		a.logger.Info("victory sweeper disabled, block time resolves claims")
		return nil
	}
	t := a.clock.Ticker(a.sweepInterval)
	defer t.Stop()

	a.logger.Info("victory sweeper started", "interval", a.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := a.Sweep(); n > 0 {
				a.logger.Debug("swept victory claims", "resolved", n)
			}
		}
	}
}
