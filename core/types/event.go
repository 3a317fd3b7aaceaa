package types

// Event is the wire-level payload behind every settlement event: a dotted type
// name plus flat string attributes, so subscribers can index pool lifecycle
// changes without depending on the engine's internal record types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
