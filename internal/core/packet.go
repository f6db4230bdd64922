// Package core defines core data structures with zero external dependencies.
package core

// CapturedPacket is a fully dissected frame. It is never mutated after the
// dissector builds it, except that file loaders replace Timestamp with the
// container's record time.
type CapturedPacket struct {
	ID        uint64          `json:"id"`        // Monotonic per capture/file session, starts at 1
	Timestamp int64           `json:"timestamp"` // Milliseconds since epoch
	Src       string          `json:"src"`       // ip:port for TCP/UDP, bare IP or MAC otherwise
	Dst       string          `json:"dst"`
	Protocol  string          `json:"protocol"`
	Length    int             `json:"length"`
	Info      string          `json:"info"`
	Layers    []ProtocolLayer `json:"layers"` // Outer to inner
	Raw       []byte          `json:"raw"`    // Verbatim frame
}

// Layer returns the first layer with the given name.
func (p *CapturedPacket) Layer(name string) (*ProtocolLayer, bool) {
	for i := range p.Layers {
		if p.Layers[i].Name == name {
			return &p.Layers[i], true
		}
	}
	return nil, false
}

// ExtractedFile is a blob carved out of captured traffic.
type ExtractedFile struct {
	ID          string   `json:"id" yaml:"id"`
	Filename    string   `json:"filename" yaml:"filename"`
	ContentType string   `json:"content_type" yaml:"content_type"`
	Size        int      `json:"size" yaml:"size"`
	Src         string   `json:"src" yaml:"src"`
	Dst         string   `json:"dst" yaml:"dst"`
	Data        []byte   `json:"data" yaml:"-"`
	PacketIDs   []uint64 `json:"packet_ids" yaml:"packet_ids,flow"`
	StreamKey   string   `json:"stream_key" yaml:"stream_key"`
	SourceType  string   `json:"source_type" yaml:"source_type"`
}
