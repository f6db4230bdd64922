// Package filter selects dissected packets, either by running a classic BPF
// program over the raw frame in userspace or by protocol label.
package filter

import (
	"fmt"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/netcarve/internal/core"
)

// Filter decides whether a packet is kept.
type Filter interface {
	Match(pkt *core.CapturedPacket) bool
}

// BPF runs a compiled program over CapturedPacket.Raw.
type BPF struct {
	expr string
	vm   *bpf.VM
}

// NewBPF compiles expr and loads it into a userspace VM. A snapLen of zero
// uses 65535.
func NewBPF(expr string, snapLen int) (*BPF, error) {
	raw, err := compile(expr, snapLen)
	if err != nil {
		return nil, err
	}
	f, err := FromRaw(raw)
	if err != nil {
		return nil, err
	}
	f.expr = strings.TrimSpace(expr)
	return f, nil
}

// FromRaw loads an already compiled program.
func FromRaw(raw []bpf.RawInstruction) (*BPF, error) {
	insts, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("%w: program contains instructions the userspace VM cannot run", core.ErrInvalidFilter)
	}
	vm, err := bpf.NewVM(insts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidFilter, err)
	}
	return &BPF{vm: vm}, nil
}

// Match reports whether the program accepts the frame. VM errors reject.
func (f *BPF) Match(pkt *core.CapturedPacket) bool {
	n, err := f.vm.Run(pkt.Raw)
	return err == nil && n > 0
}

func (f *BPF) String() string {
	return f.expr
}

// Protocol matches the dissected protocol label, case-insensitively.
type Protocol []string

func (p Protocol) Match(pkt *core.CapturedPacket) bool {
	for _, name := range p {
		if strings.EqualFold(name, pkt.Protocol) {
			return true
		}
	}
	return false
}

// Chain keeps a packet only when every filter matches. An empty chain
// matches everything.
type Chain []Filter

func (c Chain) Match(pkt *core.CapturedPacket) bool {
	for _, f := range c {
		if !f.Match(pkt) {
			return false
		}
	}
	return true
}

// Apply returns the matching packets in order.
func (c Chain) Apply(pkts []core.CapturedPacket) []core.CapturedPacket {
	if len(c) == 0 {
		return pkts
	}
	out := make([]core.CapturedPacket, 0, len(pkts))
	for i := range pkts {
		if c.Match(&pkts[i]) {
			out = append(out, pkts[i])
		}
	}
	return out
}
