package ir

// Version constants for the result schema and the tool.
const (
	// SchemaVersion is the RunSummary schema version.
	SchemaVersion = "1"

	// ToolVersion is the procprobe version.
	ToolVersion = "0.1.0"
)
