package ir

// Version constants for persisted state and the engine.
const (
	// SchemaVersion is the checkpoint payload version.
	SchemaVersion = "1"

	// EngineVersion is the agentflow engine version.
	EngineVersion = "0.1.0"
)
