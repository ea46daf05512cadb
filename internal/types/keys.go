package types

const (
	// ModuleName is the error codespace and log module of the arbiter.
	ModuleName = "fleet"
)
