package cmd

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"fleetarbiter/internal/attest"
	"fleetarbiter/internal/codec"
)

// fleet is the private side of one player in one game. It never leaves the
// client; the arbiter only sees its commitment.
type fleet struct {
	Game  string  `json:"game"`
	Name  string  `json:"name"`
	Ships []uint8 `json:"ships"` // cells still afloat
	Round int     `json:"round"` // reports made so far

	seed string
}

func fleetPath(dir, game, name string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", game, name))
}

func loadFleet(dir, game, name, seed string) (*fleet, error) {
	b, err := os.ReadFile(fleetPath(dir, game, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no local fleet for %s in %s; run join first", name, game)
	}
	if err != nil {
		return nil, fmt.Errorf("read fleet: %w", err)
	}
	var f fleet
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode fleet: %w", err)
	}
	f.seed = seed
	return &f, nil
}

func (f *fleet) save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fleet: %w", err)
	}
	return os.WriteFile(fleetPath(dir, f.Game, f.Name), b, 0o600)
}

// nonce changes every round so a miss still moves the commitment.
func (f *fleet) nonce(round int) string {
	return fmt.Sprintf("%s/%d", f.seed, round)
}

func (f *fleet) commitment() codec.Digest {
	return attest.BoardCommitment(f.Ships, f.nonce(f.Round))
}

func (f *fleet) key() ed25519.PrivateKey {
	return attest.KeyFromSeed(f.seed)
}

// resolve reports whether pos hits and returns the fleet after the shot.
func (f *fleet) resolve(pos uint8) (outcome string, next *fleet) {
	next = &fleet{Game: f.Game, Name: f.Name, Round: f.Round + 1, seed: f.seed}
	next.Ships = slices.DeleteFunc(slices.Clone(f.Ships), func(c uint8) bool { return c == pos })
	if len(next.Ships) < len(f.Ships) {
		return "Hit", next
	}
	return "Miss", next
}

// parseShips reads a comma separated list of cells such as "A0,A1,A2".
func parseShips(s string) ([]uint8, error) {
	var out []uint8
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pos, err := parseCell(part)
		if err != nil {
			return nil, err
		}
		if slices.Contains(out, pos) {
			return nil, fmt.Errorf("cell %s listed twice", part)
		}
		out = append(out, pos)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no ship cells given")
	}
	slices.Sort(out)
	return out, nil
}

func parseCell(s string) (uint8, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("cell %q must be a column A-J followed by a row 0-9", s)
	}
	return codec.ParseCoord(s[:1], s[1:])
}
