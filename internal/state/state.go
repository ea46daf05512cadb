package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"fleetarbiter/internal/codec"
)

// State is the session store. It is not safe for concurrent use; the
// arbiter serialises every access behind one mutex.
type State struct {
	Sessions map[string]*Session `json:"sessions"`
}

func NewState() *State {
	return &State{Sessions: map[string]*Session{}}
}

func (s *State) Session(id string) *Session {
	return s.Sessions[id]
}

func (s *State) Delete(id string) {
	delete(s.Sessions, id)
}

// SessionIDs returns all session ids in lexicographic order.
func (s *State) SessionIDs() []string {
	ids := make([]string, 0, len(s.Sessions))
	for id := range s.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreateSession inserts an empty session whose first turn belongs to
// firstPlayer. It fails if the id is taken.
func (s *State) CreateSession(id, firstPlayer string, victoryTimeout time.Duration, now time.Time) (*Session, error) {
	if _, ok := s.Sessions[id]; ok {
		return nil, fmt.Errorf("session %q already exists", id)
	}
	sess := &Session{
		ID:             id,
		Players:        map[string]*Player{},
		TurnHolder:     firstPlayer,
		VictoryTimeout: victoryTimeout,
		CreatedAt:      now,
	}
	s.Sessions[id] = sess
	return sess, nil
}

// Hash is a digest of the whole store that does not depend on map
// iteration order.
func (s *State) Hash() []byte {
	type sessionKV struct {
		ID      string          `json:"id"`
		Session sessionSnapshot `json:"session"`
	}
	sessions := make([]sessionKV, 0, len(s.Sessions))
	for _, id := range s.SessionIDs() {
		sessions = append(sessions, sessionKV{ID: id, Session: s.Sessions[id].snapshot()})
	}
	b, _ := json.Marshal(sessions)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Sessions ----

type Player struct {
	Name           string       `json:"name"`
	Commitment     codec.Digest `json:"commitment"`
	LastActiveAt   time.Time    `json:"lastActiveAt"`
	VictoryClaimed bool         `json:"victoryClaimed"`
	PublicKey      []byte       `json:"publicKey,omitempty"` // ed25519, bound at join
}

type VictoryClaim struct {
	Claimant  string    `json:"claimant"`
	ClaimedAt time.Time `json:"claimedAt"`
}

type Session struct {
	ID      string             `json:"id"`
	Players map[string]*Player `json:"players"`

	// At most one of TurnHolder and ReportOwedBy is set; "" means unset.
	TurnHolder   string `json:"turnHolder,omitempty"`
	ReportOwedBy string `json:"reportOwedBy,omitempty"`

	VictoryClaim   *VictoryClaim `json:"victoryClaim,omitempty"`
	VictoryTimeout time.Duration `json:"victoryTimeout"`

	// Set by the first accepted shot; joins are refused afterwards.
	LockedForJoin bool      `json:"lockedForJoin"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *Session) Player(name string) *Player {
	return s.Players[name]
}

// AddPlayer binds name to its commitment and public key. A name can only be
// added once.
func (s *Session) AddPlayer(name string, commitment codec.Digest, publicKey []byte, now time.Time) (*Player, error) {
	if _, ok := s.Players[name]; ok {
		return nil, fmt.Errorf("player %q already in session %q", name, s.ID)
	}
	p := &Player{
		Name:         name,
		Commitment:   commitment,
		LastActiveAt: now,
		PublicKey:    append([]byte(nil), publicKey...),
	}
	s.Players[name] = p
	return p, nil
}

// PlayerNames returns player names in lexicographic order.
func (s *Session) PlayerNames() []string {
	names := make([]string, 0, len(s.Players))
	for n := range s.Players {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LongestIdle returns the player other than except with the oldest
// LastActiveAt. Ties go to the lexicographically smallest name.
func (s *Session) LongestIdle(except string) (string, bool) {
	var (
		best   string
		oldest time.Time
		found  bool
	)
	for _, n := range s.PlayerNames() {
		if n == except {
			continue
		}
		p := s.Players[n]
		if !found || p.LastActiveAt.Before(oldest) {
			best, oldest, found = n, p.LastActiveAt, true
		}
	}
	return best, found
}

// Claimants returns the players currently flagged as claiming victory, in
// lexicographic order.
func (s *Session) Claimants() []string {
	var out []string
	for _, n := range s.PlayerNames() {
		if s.Players[n].VictoryClaimed {
			out = append(out, n)
		}
	}
	return out
}

// ClaimRemaining reports how much of the contest window is left at now. ok is
// false when there is no claim.
func (s *Session) ClaimRemaining(now time.Time) (remaining time.Duration, ok bool) {
	if s.VictoryClaim == nil {
		return 0, false
	}
	elapsed := now.Sub(s.VictoryClaim.ClaimedAt)
	if elapsed >= s.VictoryTimeout {
		return 0, true
	}
	return s.VictoryTimeout - elapsed, true
}

// ClearClaims drops the claim and every player's claim flag.
func (s *Session) ClearClaims() {
	s.VictoryClaim = nil
	for _, p := range s.Players {
		p.VictoryClaimed = false
	}
}

// Validate checks the structural invariants that must hold between commands.
func (s *Session) Validate() error {
	if s.TurnHolder != "" && s.ReportOwedBy != "" {
		return fmt.Errorf("session %q: turn holder %q and report owed by %q both set", s.ID, s.TurnHolder, s.ReportOwedBy)
	}
	if len(s.Players) > 0 && s.TurnHolder == "" && s.ReportOwedBy == "" {
		return fmt.Errorf("session %q: neither turn holder nor report owed set", s.ID)
	}
	if s.TurnHolder != "" && s.Players[s.TurnHolder] == nil {
		return fmt.Errorf("session %q: turn holder %q is not a player", s.ID, s.TurnHolder)
	}
	if s.ReportOwedBy != "" && s.Players[s.ReportOwedBy] == nil {
		return fmt.Errorf("session %q: report owed by %q who is not a player", s.ID, s.ReportOwedBy)
	}
	claimed := len(s.Claimants())
	if s.VictoryClaim != nil && claimed == 0 {
		return fmt.Errorf("session %q: victory claim without claimants", s.ID)
	}
	if s.VictoryClaim == nil && claimed != 0 {
		return fmt.Errorf("session %q: %d claimants without a victory claim", s.ID, claimed)
	}
	return nil
}

// ---- Snapshots ----

type playerSnapshot struct {
	Name           string       `json:"name"`
	Commitment     codec.Digest `json:"commitment"`
	LastActiveAt   time.Time    `json:"lastActiveAt"`
	VictoryClaimed bool         `json:"victoryClaimed"`
	PublicKey      []byte       `json:"publicKey,omitempty"`
}

type sessionSnapshot struct {
	Players        []playerSnapshot `json:"players"`
	TurnHolder     string           `json:"turnHolder,omitempty"`
	ReportOwedBy   string           `json:"reportOwedBy,omitempty"`
	VictoryClaim   *VictoryClaim    `json:"victoryClaim,omitempty"`
	VictoryTimeout time.Duration    `json:"victoryTimeout"`
	LockedForJoin  bool             `json:"lockedForJoin"`
}

func (s *Session) snapshot() sessionSnapshot {
	out := sessionSnapshot{
		TurnHolder:     s.TurnHolder,
		ReportOwedBy:   s.ReportOwedBy,
		VictoryClaim:   s.VictoryClaim,
		VictoryTimeout: s.VictoryTimeout,
		LockedForJoin:  s.LockedForJoin,
	}
	for _, n := range s.PlayerNames() {
		p := s.Players[n]
		out.Players = append(out.Players, playerSnapshot{
			Name:           p.Name,
			Commitment:     p.Commitment,
			LastActiveAt:   p.LastActiveAt.UTC(),
			VictoryClaimed: p.VictoryClaimed,
			PublicKey:      p.PublicKey,
		})
	}
	return out
}
