package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Journals are encoded with Core Deterministic CBOR so the bytes a player
// signs are the bytes the arbiter verifies.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// BaseJournal is the public output of the join, wave and win computations.
type BaseJournal struct {
	GameID string `cbor:"gameid" json:"gameid"`
	Fleet  string `cbor:"fleet" json:"fleet"`
	Board  Digest `cbor:"board" json:"board"`
}

// FireJournal is the public output of the fire computation.
type FireJournal struct {
	GameID string `cbor:"gameid" json:"gameid"`
	Fleet  string `cbor:"fleet" json:"fleet"`
	Board  Digest `cbor:"board" json:"board"`
	Target string `cbor:"target" json:"target"`
	Pos    uint8  `cbor:"pos" json:"pos"`
}

// ReportJournal is the public output of the report computation. NextBoard is
// the commitment after the reported cell has been revealed.
type ReportJournal struct {
	GameID    string `cbor:"gameid" json:"gameid"`
	Fleet     string `cbor:"fleet" json:"fleet"`
	Report    string `cbor:"report" json:"report"`
	Pos       uint8  `cbor:"pos" json:"pos"`
	Board     Digest `cbor:"board" json:"board"`
	NextBoard Digest `cbor:"next_board" json:"next_board"`
}

// journalFrame tags the journal body with the command it was produced for.
type journalFrame struct {
	Kind Command         `cbor:"kind"`
	Body cbor.RawMessage `cbor:"body"`
}

// EncodeJournal frames body for kind. The body type must be the schema that
// kind commits to.
func EncodeJournal(kind Command, body any) ([]byte, error) {
	switch body.(type) {
	case BaseJournal:
		if kind != CmdJoin && kind != CmdWave && kind != CmdWin {
			return nil, fmt.Errorf("journal: base schema not valid for %s", kind)
		}
	case FireJournal:
		if kind != CmdFire {
			return nil, fmt.Errorf("journal: fire schema not valid for %s", kind)
		}
	case ReportJournal:
		if kind != CmdReport {
			return nil, fmt.Errorf("journal: report schema not valid for %s", kind)
		}
	default:
		return nil, fmt.Errorf("journal: unsupported body %T", body)
	}
	raw, err := encMode.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("journal: encode body: %w", err)
	}
	out, err := encMode.Marshal(journalFrame{Kind: kind, Body: raw})
	if err != nil {
		return nil, fmt.Errorf("journal: encode frame: %w", err)
	}
	return out, nil
}

func decodeFrame(want Command, b []byte) (cbor.RawMessage, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("journal: empty")
	}
	var f journalFrame
	if err := decMode.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("journal: decode frame: %w", err)
	}
	if f.Kind != want {
		return nil, fmt.Errorf("journal: kind %s does not match command %s", f.Kind, want)
	}
	return f.Body, nil
}

// DecodeBaseJournal decodes a join, wave or win journal.
func DecodeBaseJournal(kind Command, b []byte) (BaseJournal, error) {
	if kind != CmdJoin && kind != CmdWave && kind != CmdWin {
		return BaseJournal{}, fmt.Errorf("journal: %s has no base schema", kind)
	}
	body, err := decodeFrame(kind, b)
	if err != nil {
		return BaseJournal{}, err
	}
	var j BaseJournal
	if err := decMode.Unmarshal(body, &j); err != nil {
		return BaseJournal{}, fmt.Errorf("journal: decode %s body: %w", kind, err)
	}
	return j, nil
}

func DecodeFireJournal(b []byte) (FireJournal, error) {
	body, err := decodeFrame(CmdFire, b)
	if err != nil {
		return FireJournal{}, err
	}
	var j FireJournal
	if err := decMode.Unmarshal(body, &j); err != nil {
		return FireJournal{}, fmt.Errorf("journal: decode Fire body: %w", err)
	}
	return j, nil
}

func DecodeReportJournal(b []byte) (ReportJournal, error) {
	body, err := decodeFrame(CmdReport, b)
	if err != nil {
		return ReportJournal{}, err
	}
	var j ReportJournal
	if err := decMode.Unmarshal(body, &j); err != nil {
		return ReportJournal{}, fmt.Errorf("journal: decode Report body: %w", err)
	}
	return j, nil
}
