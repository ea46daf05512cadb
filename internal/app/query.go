package app

import (
	"time"

	errorsmod "cosmossdk.io/errors"

	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/state"
	"fleetarbiter/internal/types"
)

type PlayerView struct {
	Name           string        `json:"name"`
	LastActiveAt   time.Time     `json:"lastActiveAt"`
	VictoryClaimed bool          `json:"victoryClaimed"`
	Commitment     *codec.Digest `json:"commitment,omitempty"` // only for the requesting player
}

// GameState is a read-only view of a session from one player's side.
type GameState struct {
	Session       string              `json:"session"`
	Player        string              `json:"player"`
	TurnHolder    string              `json:"turnHolder,omitempty"`
	ReportOwedBy  string              `json:"reportOwedBy,omitempty"`
	LockedForJoin bool                `json:"lockedForJoin"`
	VictoryClaim  *state.VictoryClaim `json:"victoryClaim,omitempty"`
	// Whole seconds left in the contest window, 0 when none is open.
	ClaimRemaining int64        `json:"claimRemaining,omitempty"`
	Players        []PlayerView `json:"players"`

	// Fields read by older clients before proving a shot.
	NextPlayer *string `json:"next_player"`
	NextReport *string `json:"next_report"`
}

// GameState reports the session as seen by player at wall-clock time.
func (a *Arbiter) GameState(sessionID, player string) (GameState, error) {
	return a.gameStateAt(sessionID, player, a.clock.Now())
}

// gameStateAt is GameState with the contest window measured at now.
func (a *Arbiter) gameStateAt(sessionID, player string, now time.Time) (GameState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess := a.st.Session(sessionID)
	if sess == nil {
		return GameState{}, errorsmod.Wrapf(types.ErrSessionNotFound, "session %q", sessionID)
	}
	if sess.Player(player) == nil {
		return GameState{}, errorsmod.Wrapf(types.ErrPlayerNotFound, "player %q in session %q", player, sessionID)
	}

	gs := GameState{
		Session:       sess.ID,
		Player:        player,
		TurnHolder:    sess.TurnHolder,
		ReportOwedBy:  sess.ReportOwedBy,
		LockedForJoin: sess.LockedForJoin,
		NextPlayer:    optional(sess.TurnHolder),
		NextReport:    optional(sess.ReportOwedBy),
	}
	if sess.VictoryClaim != nil {
		vc := *sess.VictoryClaim
		gs.VictoryClaim = &vc
		if rem, ok := sess.ClaimRemaining(now); ok {
			gs.ClaimRemaining = int64((rem + time.Second - 1) / time.Second)
		}
	}
	for _, n := range sess.PlayerNames() {
		p := sess.Player(n)
		v := PlayerView{Name: p.Name, LastActiveAt: p.LastActiveAt, VictoryClaimed: p.VictoryClaimed}
		if n == player {
			c := p.Commitment
			v.Commitment = &c
		}
		gs.Players = append(gs.Players, v)
	}
	return gs, nil
}

// Sessions lists live session ids in lexicographic order.
func (a *Arbiter) Sessions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.SessionIDs()
}

// StateHash digests the whole session store.
func (a *Arbiter) StateHash() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.Hash()
}

// validate checks every session's invariants. Used by tests after each step.
func (a *Arbiter) validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.st.SessionIDs() {
		if err := a.st.Session(id).Validate(); err != nil {
			return err
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
