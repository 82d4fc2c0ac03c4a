package types

// Event represents a typed event emitted during state transitions. Attributes
// carry decimal-encoded amounts so consumers never need to parse big integers
// from binary payloads.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute or the empty string when absent.
func (e *Event) Attribute(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
