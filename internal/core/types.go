// Package core defines core types with zero external dependencies.
package core

// ProtocolField is one row of a dissected protocol tree. Bit-level breakdowns
// (flags, DSCP/ECN) are carried as Children.
type ProtocolField struct {
	Name     string          `json:"name"`
	Value    string          `json:"value"`
	Children []ProtocolField `json:"children,omitempty"`
}

// NewField builds a leaf field.
func NewField(name, value string) ProtocolField {
	return ProtocolField{Name: name, Value: value}
}

// NewFieldWithChildren builds a field with a nested breakdown.
func NewFieldWithChildren(name, value string, children []ProtocolField) ProtocolField {
	return ProtocolField{Name: name, Value: value, Children: children}
}

// ProtocolLayer is one decoded protocol header.
type ProtocolLayer struct {
	Name    string          `json:"name"`
	Display string          `json:"display"` // Wireshark-style summary line
	Fields  []ProtocolField `json:"fields"`
}

// Field returns the first top-level field with the given name.
func (l *ProtocolLayer) Field(name string) (ProtocolField, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ProtocolField{}, false
}

// InterfaceInfo describes a capture-capable host interface.
type InterfaceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MAC         string `json:"mac,omitempty"`
	IPv4        string `json:"ipv4,omitempty"`
}
