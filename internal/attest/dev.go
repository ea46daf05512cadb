package attest

import (
	"crypto/subtle"

	"fleetarbiter/internal/codec"
)

// Development receipts bind a journal to an image id with a keyed BLAKE3
// seal. They prove nothing about the private computation and exist so the
// arbiter and the dev client can run without a proving system, the same
// trade-off as a zkVM's dev mode.

var sealDomainKey = domainKey("fleetarbiter.receipt")

func devSeal(id codec.ImageID, journal []byte) [32]byte {
	return keyedHash(sealDomainKey, id[:], journal)
}

// DevProver produces development receipts.
type DevProver struct{}

// Prove frames body as the journal for cmd and seals it.
func (DevProver) Prove(cmd codec.Command, body any) (codec.Receipt, error) {
	id, err := ImageIDFor(cmd)
	if err != nil {
		return codec.Receipt{}, err
	}
	journal, err := codec.EncodeJournal(cmd, body)
	if err != nil {
		return codec.Receipt{}, err
	}
	seal := devSeal(id, journal)
	return codec.Receipt{ImageID: id, Journal: journal, Seal: seal[:]}, nil
}

// DevVerifier verifies development receipts.
type DevVerifier struct{}

func (DevVerifier) Verify(r codec.Receipt, id codec.ImageID) error {
	if r.ImageID != id {
		return ErrImageMismatch
	}
	want := devSeal(id, r.Journal)
	if subtle.ConstantTimeCompare(want[:], r.Seal) != 1 {
		return ErrBadSeal
	}
	return nil
}
