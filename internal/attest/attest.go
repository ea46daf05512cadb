// Package attest defines the journal verification boundary. The arbiter never
// sees private boards; it only checks that a receipt was produced by the
// computation registered for the command and reads the public journal.
package attest

import (
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"fleetarbiter/internal/codec"
)

var (
	ErrImageMismatch = errors.New("receipt image id does not match command")
	ErrBadSeal       = errors.New("receipt seal does not verify")
)

// Verifier checks that a receipt attests the computation identified by id.
type Verifier interface {
	Verify(r codec.Receipt, id codec.ImageID) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(r codec.Receipt, id codec.ImageID) error

func (f VerifierFunc) Verify(r codec.Receipt, id codec.ImageID) error { return f(r, id) }

var imageIDDomainKey = domainKey("fleetarbiter.image")

var imageIDs = func() map[codec.Command]codec.ImageID {
	m := make(map[codec.Command]codec.ImageID, len(codec.Commands()))
	for _, c := range codec.Commands() {
		m[c] = codec.ImageID(keyedHash(imageIDDomainKey, []byte(c.String())))
	}
	return m
}()

// ImageIDFor returns the image id of the computation backing cmd. There is
// exactly one per command kind.
func ImageIDFor(cmd codec.Command) (codec.ImageID, error) {
	id, ok := imageIDs[cmd]
	if !ok {
		return codec.ImageID{}, fmt.Errorf("no image id for %s", cmd)
	}
	return id, nil
}

// domainKey pads an ASCII domain name to a 32-byte BLAKE3 key.
func domainKey(name string) [32]byte {
	var k [32]byte
	if len(name) > len(k) {
		panic("attest: domain name too long: " + name)
	}
	copy(k[:], name)
	return k
}

func keyedHash(key [32]byte, parts ...[]byte) [32]byte {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// Only returned for keys that are not 32 bytes.
		panic("attest: " + err.Error())
	}
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
