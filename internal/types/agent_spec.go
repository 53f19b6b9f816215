package types

// AgentSpec is the structured record that describes an agent to be
// materialized by the runtime (spec.md §6, "Agent specification document").
type AgentSpec struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Capabilities  []string               `json:"capabilities"`
	MessageTypes  []string               `json:"messageTypes"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// Validate checks the structural invariants of spec.md §6 for AgentSpec.
func (s AgentSpec) Validate() error {
	var fields []string
	if s.ID == "" {
		fields = append(fields, "id must not be empty")
	}
	if s.Name == "" {
		fields = append(fields, "name must not be empty")
	}
	if len(s.Capabilities) == 0 {
		fields = append(fields, "capabilities must not be empty")
	}
	if len(s.MessageTypes) == 0 {
		fields = append(fields, "messageTypes must not be empty")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
