package app

import (
	"crypto/ed25519"
	"fmt"

	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/state"
)

// Signatures cover the raw journal bytes of the receipt, so a signature can
// not be lifted onto a different command or session.

func requireSignatureShape(sig []byte) error {
	if len(sig) == 0 {
		return fmt.Errorf("missing signature")
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length: got %d want %d", len(sig), ed25519.SignatureSize)
	}
	return nil
}

// requireJoinAuth checks the out-of-band key asserted on join. A join without
// a key is accepted, but such a player can never authenticate afterwards.
func requireJoinAuth(env codec.Envelope) error {
	if len(env.PublicKey) == 0 {
		return nil
	}
	if len(env.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("publicKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignatureShape(env.Signature); err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(env.PublicKey), env.Receipt.Journal, env.Signature) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func requirePlayerAuth(p *state.Player, env codec.Envelope) error {
	if p == nil {
		return fmt.Errorf("player is nil")
	}
	if len(p.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("player %q has no registered public key", p.Name)
	}
	if err := requireSignatureShape(env.Signature); err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(p.PublicKey), env.Receipt.Journal, env.Signature) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
