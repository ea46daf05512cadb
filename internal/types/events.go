package types

// Event kinds published on the event log.
const (
	EventTypeJoined          = "Joined"
	EventTypeFired           = "Fired"
	EventTypeReported        = "Reported"
	EventTypeWaved           = "Waved"
	EventTypeVictoryClaimed  = "VictoryClaimed"
	EventTypeVictoryContest  = "VictoryContested"
	EventTypeVictoryAwarded  = "VictoryAwarded"
	EventTypeVictoryVoided   = "VictoryVoided"
	EventTypeCommandRejected = "CommandRejected"
)
