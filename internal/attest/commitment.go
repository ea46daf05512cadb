package attest

import (
	"crypto/ed25519"
	"encoding/binary"

	"fleetarbiter/internal/codec"
)

var (
	boardDomainKey = domainKey("fleetarbiter.board")
	keyDomainKey   = domainKey("fleetarbiter.signing-key")
)

// BoardCommitment binds a board placement to a secret nonce. The arbiter
// stores these but never recomputes them.
func BoardCommitment(board []uint8, nonce string) codec.Digest {
	n := binary.LittleEndian.AppendUint32(nil, uint32(len(board)))
	return codec.Digest(keyedHash(boardDomainKey, n, board, []byte(nonce)))
}

// KeyFromSeed derives a player's signing key from the same random seed that
// salts their board commitment, so a client needs to remember one secret.
func KeyFromSeed(seed string) ed25519.PrivateKey {
	s := keyedHash(keyDomainKey, []byte(seed))
	return ed25519.NewKeyFromSeed(s[:])
}
