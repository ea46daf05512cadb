package codec

import (
	"fmt"
	"strings"
)

// Command is the declared intent of an envelope. Each command kind has its
// own attestation image id and journal schema.
type Command uint8

const (
	CmdUnknown Command = iota
	CmdJoin
	CmdFire
	CmdReport
	CmdWave
	CmdWin
)

var commandNames = map[Command]string{
	CmdJoin:   "Join",
	CmdFire:   "Fire",
	CmdReport: "Report",
	CmdWave:   "Wave",
	CmdWin:    "Win",
}

// Commands lists every routable command in a stable order.
func Commands() []Command {
	return []Command{CmdJoin, CmdFire, CmdReport, CmdWave, CmdWin}
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

// Valid reports whether c is one of the five routable commands.
func (c Command) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

// ParseCommand accepts the wire names case-insensitively. "ClaimVictory" is
// accepted as an alias of "Win".
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "claimvictory") {
		return CmdWin, nil
	}
	for c, n := range commandNames {
		if strings.EqualFold(s, n) {
			return c, nil
		}
	}
	return CmdUnknown, fmt.Errorf("unknown command %q", s)
}

func (c Command) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("cannot encode %s", c)
	}
	return []byte(c.String()), nil
}

func (c *Command) UnmarshalText(b []byte) error {
	parsed, err := ParseCommand(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
