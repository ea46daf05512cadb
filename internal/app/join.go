package app

import (
	"fmt"
	"time"

	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/types"
)

func (a *Arbiter) handleJoin(env codec.Envelope, j codec.BaseJournal, now time.Time) error {
	if j.GameID == "" || j.Fleet == "" {
		return reject(types.ErrInvalidRequest, "Missing game id or fleet name")
	}
	if err := requireJoinAuth(env); err != nil {
		rej := reject(types.ErrAuthentication, "Could not verify signature")
		rej.cause = err
		return rej
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sess := a.st.Session(j.GameID)
	if sess != nil {
		if winner, over := a.settleElapsedClaim(sess, now); over {
			return gameOver(winner)
		}
	}
	if sess != nil && sess.LockedForJoin {
		return reject(types.ErrJoinLocked, "Cannot join: game already started")
	}
	if sess != nil && sess.Player(j.Fleet) != nil {
		return reject(types.ErrPlayerPresent, "Player already in session")
	}
	if sess == nil {
		var err error
		sess, err = a.st.CreateSession(j.GameID, j.Fleet, a.victoryTimeout, now)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		a.sessionCountChanged()
	}
	if _, err := sess.AddPlayer(j.Fleet, j.Board, env.PublicKey, now); err != nil {
		return fmt.Errorf("add player: %w", err)
	}

	a.emit(types.EventTypeJoined, sess.ID, fmt.Sprintf("%s joined session %s", j.Fleet, sess.ID))
	return nil
}
