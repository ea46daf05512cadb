package types

import errorsmod "cosmossdk.io/errors"

// Rejection categories. Codes are stable; ABCI results carry them verbatim.
var (
	ErrAttestationInvalid = errorsmod.Register(ModuleName, 1, "attestation invalid")
	ErrAuthentication     = errorsmod.Register(ModuleName, 2, "authentication failure")
	ErrSessionNotFound    = errorsmod.Register(ModuleName, 3, "session not found")
	ErrPlayerNotFound     = errorsmod.Register(ModuleName, 4, "player not found")
	ErrPlayerPresent      = errorsmod.Register(ModuleName, 5, "player already present")
	ErrStateMismatch      = errorsmod.Register(ModuleName, 6, "commitment mismatch")
	ErrTurnViolation      = errorsmod.Register(ModuleName, 7, "turn violation")
	ErrOutOfRange         = errorsmod.Register(ModuleName, 8, "input out of range")
	ErrVictoryConflict    = errorsmod.Register(ModuleName, 9, "victory conflict")
	ErrJoinLocked         = errorsmod.Register(ModuleName, 10, "session locked for join")
	ErrInvalidRequest     = errorsmod.Register(ModuleName, 11, "invalid request")
)
