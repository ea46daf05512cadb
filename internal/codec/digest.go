package codec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DigestSize is the size of commitments and image ids.
const DigestSize = 32

// Digest is a fixed-size commitment to a player's private board.
type Digest [DigestSize]byte

// ImageID identifies the attested computation a receipt was produced by.
type ImageID [DigestSize]byte

func (d Digest) String() string { return bytesToHex(d[:]) }

func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(b []byte) error {
	raw, err := hexToFixed(string(b))
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	*d = raw
	return nil
}

// ParseDigest decodes a hex digest with an optional 0x prefix.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	err := d.UnmarshalText([]byte(s))
	return d, err
}

func (id ImageID) String() string { return bytesToHex(id[:]) }

func (id ImageID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ImageID) UnmarshalText(b []byte) error {
	raw, err := hexToFixed(string(b))
	if err != nil {
		return fmt.Errorf("image id: %w", err)
	}
	*id = raw
	return nil
}

func hexToFixed(s string) ([DigestSize]byte, error) {
	var out [DigestSize]byte
	if s == "" {
		return out, fmt.Errorf("hex: empty string")
	}
	ss := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(ss) != 2*DigestSize {
		return out, fmt.Errorf("hex: want %d chars, got %d", 2*DigestSize, len(ss))
	}
	if _, err := hex.Decode(out[:], []byte(ss)); err != nil {
		return out, fmt.Errorf("hex: %w", err)
	}
	return out, nil
}

func bytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
