package codec

import (
	"encoding/json"
	"fmt"
)

// Receipt is an attestation that a computation identified by ImageID
// produced Journal. Seal is opaque to everything except the verifier.
type Receipt struct {
	ImageID ImageID `json:"imageId"`
	Journal []byte  `json:"journal"` // base64 in JSON
	Seal    []byte  `json:"seal"`    // base64 in JSON
}

// Envelope is the command container posted by clients.
//
// Signature covers Receipt.Journal and is checked against the key bound at
// join. PublicKey is only read on Join; it is not covered by the receipt.
type Envelope struct {
	Cmd       Command `json:"cmd"`
	Receipt   Receipt `json:"receipt"`
	Signature []byte  `json:"signature,omitempty"`
	PublicKey []byte  `json:"publicKey,omitempty"`
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope json: %w", err)
	}
	if !env.Cmd.Valid() {
		return Envelope{}, fmt.Errorf("missing envelope.cmd")
	}
	if len(env.Receipt.Journal) == 0 {
		return Envelope{}, fmt.Errorf("missing envelope.receipt.journal")
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}
