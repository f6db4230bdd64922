// Package pcapfile reads and writes classic pcap and pcapng capture files.
// Frames are written from CapturedPacket.Raw verbatim so a read/write cycle
// is byte-exact.
package pcapfile

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"firestige.xyz/netcarve/internal/core"
)

// Format is a capture container type.
type Format int

const (
	FormatPcap Format = iota + 1
	FormatPcapNG
)

// String returns the interface label used for dissected packets.
func (f Format) String() string {
	switch f {
	case FormatPcap:
		return "pcap"
	case FormatPcapNG:
		return "pcapng"
	default:
		return "unknown"
	}
}

var (
	magicPcapLE = []byte{0xd4, 0xc3, 0xb2, 0xa1}
	magicPcapBE = []byte{0xa1, 0xb2, 0xc3, 0xd4}
	magicPcapNG = []byte{0x0a, 0x0d, 0x0d, 0x0a} // Section Header Block type
)

// DetectFormat identifies the container from its first four bytes.
func DetectFormat(magic []byte) (Format, error) {
	if len(magic) >= 4 {
		switch m := magic[:4]; {
		case bytes.Equal(m, magicPcapLE), bytes.Equal(m, magicPcapBE):
			return FormatPcap, nil
		case bytes.Equal(m, magicPcapNG):
			return FormatPcapNG, nil
		}
	}
	return 0, core.ErrUnknownFormat
}

// FormatForPath picks the output format from a file extension.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".pcapng") {
		return FormatPcapNG
	}
	return FormatPcap
}

// ParseFormat accepts "pcap" or "pcapng".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "pcap":
		return FormatPcap, nil
	case "pcapng":
		return FormatPcapNG, nil
	default:
		return 0, fmt.Errorf("unsupported capture format %q (must be pcap/pcapng)", s)
	}
}
