package codec

import (
	"encoding/json"
	"strings"
	"testing"
)

func testDigest(b byte) Digest {
	var d Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func TestDecodeEnvelope_OK(t *testing.T) {
	journal, err := EncodeJournal(CmdJoin, BaseJournal{GameID: "g1", Fleet: "alice", Board: testDigest(1)})
	if err != nil {
		t.Fatalf("EncodeJournal: %v", err)
	}
	b, err := Envelope{
		Cmd:       CmdJoin,
		Receipt:   Receipt{Journal: journal, Seal: []byte{1}},
		PublicKey: []byte{7},
	}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(b), `"cmd":"Join"`) {
		t.Fatalf("expected textual cmd, got %s", b)
	}

	env, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Cmd != CmdJoin {
		t.Fatalf("unexpected cmd: %s", env.Cmd)
	}
	j, err := DecodeBaseJournal(env.Cmd, env.Receipt.Journal)
	if err != nil {
		t.Fatalf("DecodeBaseJournal: %v", err)
	}
	if j.GameID != "g1" || j.Fleet != "alice" || j.Board != testDigest(1) {
		t.Fatalf("unexpected journal: %+v", j)
	}
}

func TestDecodeEnvelope_AcceptsClaimVictoryAlias(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"cmd":     "ClaimVictory",
		"receipt": map[string]any{"journal": []byte{1}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	env, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Cmd != CmdWin {
		t.Fatalf("expected Win, got %s", env.Cmd)
	}
}

func TestDecodeEnvelope_MissingCmd(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"receipt": map[string]any{"journal": []byte{1}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := DecodeEnvelope(b); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeEnvelope_UnknownCmd(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"cmd":"Surrender","receipt":{"journal":"AQ=="}}`)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeEnvelope_InvalidJSON(t *testing.T) {
	if _, err := DecodeEnvelope([]byte("{not json")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeJournal_KindMustMatchCommand(t *testing.T) {
	wave, err := EncodeJournal(CmdWave, BaseJournal{GameID: "g1", Fleet: "alice"})
	if err != nil {
		t.Fatalf("EncodeJournal: %v", err)
	}
	// Same schema, different command.
	if _, err := DecodeBaseJournal(CmdJoin, wave); err == nil {
		t.Fatalf("expected wave journal to be rejected as join")
	}
	if _, err := DecodeFireJournal(wave); err == nil {
		t.Fatalf("expected wave journal to be rejected as fire")
	}
	if _, err := DecodeBaseJournal(CmdFire, wave); err == nil {
		t.Fatalf("expected fire to have no base schema")
	}
}

func TestEncodeJournal_RejectsSchemaMismatch(t *testing.T) {
	if _, err := EncodeJournal(CmdFire, BaseJournal{}); err == nil {
		t.Fatalf("expected base schema to be rejected for Fire")
	}
	if _, err := EncodeJournal(CmdJoin, ReportJournal{}); err == nil {
		t.Fatalf("expected report schema to be rejected for Join")
	}
}

func TestDecodeReportJournal_Fields(t *testing.T) {
	in := ReportJournal{GameID: "g1", Fleet: "bob", Report: "Hit", Pos: 5, Board: testDigest(2), NextBoard: testDigest(3)}
	b, err := EncodeJournal(CmdReport, in)
	if err != nil {
		t.Fatalf("EncodeJournal: %v", err)
	}
	out, err := DecodeReportJournal(b)
	if err != nil {
		t.Fatalf("DecodeReportJournal: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestEncodeJournal_Deterministic(t *testing.T) {
	j := FireJournal{GameID: "g1", Fleet: "alice", Target: "bob", Pos: 42, Board: testDigest(9)}
	a, err := EncodeJournal(CmdFire, j)
	if err != nil {
		t.Fatalf("EncodeJournal: %v", err)
	}
	b, err := EncodeJournal(CmdFire, j)
	if err != nil {
		t.Fatalf("EncodeJournal: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected identical encodings")
	}
}

func TestDigest_TextRoundTripAndPrefix(t *testing.T) {
	d := testDigest(0xab)
	s := d.String()
	if !strings.HasPrefix(s, "0x") || len(s) != 2+64 {
		t.Fatalf("unexpected digest text %q", s)
	}
	got, err := ParseDigest(strings.TrimPrefix(strings.ToUpper(s), "0X"))
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if got != d {
		t.Fatalf("digest mismatch")
	}
	if _, err := ParseDigest("0x1234"); err == nil {
		t.Fatalf("expected short digest to be rejected")
	}
}

func TestCoordString(t *testing.T) {
	cases := []struct {
		pos  uint8
		want string
	}{
		{0, "A0"},
		{5, "F0"},
		{6, "G0"},
		{42, "C4"},
		{99, "J9"},
	}
	for _, tc := range cases {
		if got := CoordString(tc.pos); got != tc.want {
			t.Fatalf("CoordString(%d)=%q want=%q", tc.pos, got, tc.want)
		}
	}
}

func TestParseCoord(t *testing.T) {
	pos, err := ParseCoord("c", "4")
	if err != nil {
		t.Fatalf("ParseCoord: %v", err)
	}
	if pos != 42 {
		t.Fatalf("expected 42, got %d", pos)
	}
	if _, err := ParseCoord("K", "1"); err == nil {
		t.Fatalf("expected column K to be rejected")
	}
	if _, err := ParseCoord("A", "x"); err == nil {
		t.Fatalf("expected row x to be rejected")
	}
}
