package filter

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/netcarve/internal/core"
)

// defaultSnapLen bounds the programs compiled when no snaplen is configured.
const defaultSnapLen = 65535

// compile turns a tcpdump-style expression into a program over Ethernet
// frames. libpcap does the parsing; the result runs in the userspace VM.
func compile(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", core.ErrInvalidFilter)
	}
	if snapLen <= 0 {
		snapLen = defaultSnapLen
	}

	prog, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", core.ErrInvalidFilter, expr, err)
	}
	return toRaw(prog), nil
}

// toRaw converts libpcap's instruction layout to x/net/bpf's.
func toRaw(prog []pcap.BPFInstruction) []bpf.RawInstruction {
	raw := make([]bpf.RawInstruction, 0, len(prog))
	for _, in := range prog {
		raw = append(raw, bpf.RawInstruction{Op: in.Code, Jt: in.Jt, Jf: in.Jf, K: in.K})
	}
	return raw
}
