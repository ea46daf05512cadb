package app

import (
	"fmt"
	"time"

	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/state"
	"fleetarbiter/internal/types"
)

const (
	reportHit  = "Hit"
	reportMiss = "Miss"
)

func authRejection(err error) *rejection {
	rej := reject(types.ErrAuthentication, "Could not verify signature")
	rej.cause = err
	return rej
}

// requireMember returns the named player or the rejection for a missing one.
func requireMember(sess *state.Session, name, reply string) (*state.Player, error) {
	p := sess.Player(name)
	if p == nil {
		return nil, reject(types.ErrPlayerNotFound, "%s", reply)
	}
	return p, nil
}

func requireCommitment(p *state.Player, presented codec.Digest) error {
	if p.Commitment != presented {
		return reject(types.ErrStateMismatch, "Board hash mismatch")
	}
	return nil
}

// handleFire checks, in order: session, target membership, self-targeting,
// shooter membership, signature, contest lock, commitment, outstanding report,
// turn, position. An outstanding report is checked before the turn so the
// caller learns who the game is waiting on.
func (a *Arbiter) handleFire(env codec.Envelope, j codec.FireJournal, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, err := a.sessionFor(j.GameID, now)
	if err != nil {
		return err
	}
	if _, err := requireMember(sess, j.Target, "Target not found"); err != nil {
		return err
	}
	if j.Target == j.Fleet {
		return reject(types.ErrInvalidRequest, "Cannot fire at yourself")
	}
	p, err := requireMember(sess, j.Fleet, "Player not found")
	if err != nil {
		return err
	}
	if err := requirePlayerAuth(p, env); err != nil {
		return authRejection(err)
	}
	if err := requireNoContest(sess, now); err != nil {
		return err
	}
	if err := requireCommitment(p, j.Board); err != nil {
		return err
	}
	if sess.ReportOwedBy != "" {
		return reject(types.ErrTurnViolation, "Cannot fire until player %s has reported", sess.ReportOwedBy)
	}
	if sess.TurnHolder != j.Fleet {
		return reject(types.ErrTurnViolation, "Not your turn")
	}
	if j.Pos > codec.MaxPos {
		return reject(types.ErrOutOfRange, "Invalid target position")
	}

	p.LastActiveAt = now
	sess.LockedForJoin = true
	sess.ReportOwedBy = j.Target
	sess.TurnHolder = ""

	a.emit(types.EventTypeFired, sess.ID, fmt.Sprintf("%s fired at %s in session %s at position %s",
		j.Fleet, j.Target, sess.ID, codec.CoordString(j.Pos)))
	return nil
}

// handleReport advances the reporter's commitment on both outcomes and hands
// them the turn.
func (a *Arbiter) handleReport(env codec.Envelope, j codec.ReportJournal, now time.Time) error {
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
	if err := requireNoContest(sess, now); err != nil {
		return err
	}
	if sess.ReportOwedBy != j.Fleet {
		return reject(types.ErrTurnViolation, "Not your turn to report")
	}
	if err := requireCommitment(p, j.Board); err != nil {
		return err
	}
	if j.Pos > codec.MaxPos {
		return reject(types.ErrOutOfRange, "Invalid position")
	}
	if j.Report != reportHit && j.Report != reportMiss {
		return reject(types.ErrOutOfRange, "Invalid report")
	}

	p.Commitment = j.NextBoard
	sess.TurnHolder = j.Fleet
	sess.ReportOwedBy = ""

	a.emit(types.EventTypeReported, sess.ID, fmt.Sprintf("%s reported %s at position %s in session %s",
		j.Fleet, j.Report, codec.CoordString(j.Pos), sess.ID))
	return nil
}

// handleWave passes the turn to the longest idle other player.
func (a *Arbiter) handleWave(env codec.Envelope, j codec.BaseJournal, now time.Time) error {
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
	if err := requireNoContest(sess, now); err != nil {
		return err
	}
	if sess.ReportOwedBy != "" {
		return reject(types.ErrTurnViolation, "Cannot wave until player %s has reported", sess.ReportOwedBy)
	}
	if sess.TurnHolder != j.Fleet {
		return reject(types.ErrTurnViolation, "Not your turn to wave")
	}
	next, ok := sess.LongestIdle(j.Fleet)
	if !ok {
		return reject(types.ErrTurnViolation, "No other players to pass turn to")
	}

	sess.TurnHolder = next

	a.emit(types.EventTypeWaved, sess.ID, fmt.Sprintf("%s waved in session %s, turn passes to %s", j.Fleet, sess.ID, next))
	return nil
}
