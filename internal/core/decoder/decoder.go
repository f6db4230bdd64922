// Package decoder implements L2-L7 protocol dissection of raw Ethernet frames.
package decoder

import (
	"fmt"
	"time"

	"firestige.xyz/netcarve/internal/core"
)

// now is replaced in tests.
var now = time.Now

// summary carries the endpoint/protocol/info columns up from the innermost
// decoded layer.
type summary struct {
	src, dst string
	protocol string
	info     string
}

// Decode dissects one Ethernet frame. It fails only when the Ethernet header
// itself cannot be read; every deeper layer degrades to a "Malformed <Proto>"
// summary instead of an error.
func Decode(id uint64, raw []byte, iface string) (*core.CapturedPacket, error) {
	if len(raw) < ethernetHeaderLen {
		return nil, core.ErrPacketTooShort
	}

	layers := make([]core.ProtocolLayer, 0, 5)
	layers = append(layers, frameLayer(id, raw, iface))

	eth, payload := decodeEthernet(raw)
	layers = append(layers, eth.layer())

	var s summary
	switch eth.etherType {
	case etherTypeIPv4:
		s = decodeIPv4(payload, &layers)
	case etherTypeIPv6:
		s = decodeIPv6(payload, &layers)
	case etherTypeARP:
		s = decodeARP(payload, &layers)
	default:
		s = summary{
			src:      eth.src,
			dst:      eth.dst,
			protocol: etherTypeName(eth.etherType),
			info:     "Unknown EtherType",
		}
	}

	frame := make([]byte, len(raw))
	copy(frame, raw)

	return &core.CapturedPacket{
		ID:        id,
		Timestamp: now().UnixMilli(),
		Src:       s.src,
		Dst:       s.dst,
		Protocol:  s.protocol,
		Length:    len(raw),
		Info:      s.info,
		Layers:    layers,
		Raw:       frame,
	}, nil
}

func frameLayer(id uint64, raw []byte, iface string) core.ProtocolLayer {
	n := len(raw)
	return core.ProtocolLayer{
		Name: "Frame",
		Display: fmt.Sprintf("Frame %d: %d bytes on wire, %d bytes captured on interface %s",
			id, n*8, n, iface),
		Fields: []core.ProtocolField{
			core.NewField("Interface", iface),
			core.NewField("Encapsulation type", "Ethernet (1)"),
			core.NewField("Frame Number", fmt.Sprintf("%d", id)),
			core.NewField("Frame Length", fmt.Sprintf("%d bytes (%d bits)", n, n*8)),
			core.NewField("Capture Length", fmt.Sprintf("%d bytes", n)),
		},
	}
}

// bitChar renders a single flag bit for dotted bit-position field names.
func bitChar(set bool) string {
	if set {
		return "1"
	}
	return "0"
}

func setString(set bool) string {
	if set {
		return "Set"
	}
	return "Not set"
}
