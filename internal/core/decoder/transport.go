// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/netcarve/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
	icmpHeaderLen   = 4

	dnsPort = 53
)

// TCP flag bits
const (
	tcpFIN = 0x01
	tcpSYN = 0x02
	tcpRST = 0x04
	tcpPSH = 0x08
	tcpACK = 0x10
	tcpURG = 0x20
	tcpECE = 0x40
	tcpCWR = 0x80
)

// decodeTCP decodes a TCP header and, when a payload is present, tries the
// HTTP sub-dissector before falling back to a port-table guess.
func decodeTCP(data []byte, out *[]core.ProtocolLayer, srcIP, dstIP string) summary {
	if len(data) < tcpHeaderMinLen {
		return summary{src: srcIP, dst: dstIP, protocol: core.ProtoTCP, info: "Malformed TCP"}
	}

	// Source Port (2 bytes at offset 0)
	srcPort := binary.BigEndian.Uint16(data[0:2])
	// Destination Port (2 bytes at offset 2)
	dstPort := binary.BigEndian.Uint16(data[2:4])
	seq := binary.BigEndian.Uint32(data[4:8])
	ack := binary.BigEndian.Uint32(data[8:12])
	// Data Offset (upper 4 bits at offset 12)
	dataOffset := data[12] >> 4
	flags := data[13]
	window := binary.BigEndian.Uint16(data[14:16])
	checksum := binary.BigEndian.Uint16(data[16:18])
	urgent := binary.BigEndian.Uint16(data[18:20])

	var payload []byte
	if headerLen := int(dataOffset) * 4; headerLen >= tcpHeaderMinLen && headerLen <= len(data) {
		payload = data[headerLen:]
	}

	short := tcpFlagsShort(flags)

	*out = append(*out, core.ProtocolLayer{
		Name: "TCP",
		Display: fmt.Sprintf("Transmission Control Protocol, Src Port: %d, Dst Port: %d, Seq: %d, Ack: %d, Len: %d",
			srcPort, dstPort, seq, ack, len(payload)),
		Fields: []core.ProtocolField{
			core.NewField("Source Port", fmt.Sprintf("%d", srcPort)),
			core.NewField("Destination Port", fmt.Sprintf("%d", dstPort)),
			core.NewField("Sequence Number", fmt.Sprintf("%d", seq)),
			core.NewField("Acknowledgment Number", fmt.Sprintf("%d", ack)),
			core.NewField(fmt.Sprintf("%04b .... = Header Length", dataOffset),
				fmt.Sprintf("%d bytes (%d)", int(dataOffset)*4, dataOffset)),
			core.NewFieldWithChildren(fmt.Sprintf("Flags: 0x%03x (%s)", flags, short), short, tcpFlagFields(flags)),
			core.NewField("Window", fmt.Sprintf("%d", window)),
			core.NewField("Checksum", fmt.Sprintf("0x%04x", checksum)),
			core.NewField("Urgent Pointer", fmt.Sprintf("%d", urgent)),
			core.NewField("TCP Segment Len", fmt.Sprintf("%d", len(payload))),
		},
	})

	s := summary{
		src: fmt.Sprintf("%s:%d", srcIP, srcPort),
		dst: fmt.Sprintf("%s:%d", dstIP, dstPort),
	}
	if len(payload) > 0 {
		if layer, info, ok := decodeHTTP(payload); ok {
			*out = append(*out, layer)
			s.protocol, s.info = core.ProtoHTTP, info
			return s
		}
	}
	s.protocol = appProtocolTCP(srcPort, dstPort)
	s.info = fmt.Sprintf("%d→%d [%s] Seq=%d Ack=%d Win=%d Len=%d",
		srcPort, dstPort, short, seq, ack, window, len(payload))
	return s
}

// tcpFlagFields breaks the flags byte into one named child per bit, MSB first.
func tcpFlagFields(flags uint8) []core.ProtocolField {
	bits := []struct {
		mask    uint8
		pattern string // %s is replaced by the bit
		name    string
	}{
		{tcpCWR, "%s.......", "Congestion Window Reduced (CWR)"},
		{tcpECE, ".%s......", "ECN-Echo"},
		{tcpURG, "..%s.....", "Urgent"},
		{tcpACK, "...%s....", "Acknowledgment"},
		{tcpPSH, "....%s...", "Push"},
		{tcpRST, ".....%s..", "Reset"},
		{tcpSYN, "......%s.", "Syn"},
		{tcpFIN, ".......%s", "Fin"},
	}
	fields := make([]core.ProtocolField, 0, len(bits))
	for _, b := range bits {
		set := flags&b.mask != 0
		fields = append(fields, core.NewField(fmt.Sprintf(b.pattern, bitChar(set))+" = "+b.name, setString(set)))
	}
	return fields
}

// decodeUDP decodes a UDP header. Either port being 53 forces the DNS label
// whether or not the DNS sub-dissector accepts the payload.
func decodeUDP(data []byte, out *[]core.ProtocolLayer, srcIP, dstIP string) summary {
	if len(data) < udpHeaderLen {
		return summary{src: srcIP, dst: dstIP, protocol: core.ProtoUDP, info: "Malformed UDP"}
	}

	srcPort := binary.BigEndian.Uint16(data[0:2])
	dstPort := binary.BigEndian.Uint16(data[2:4])
	// Length (2 bytes at offset 4) includes header and data
	length := binary.BigEndian.Uint16(data[4:6])
	checksum := binary.BigEndian.Uint16(data[6:8])
	payload := data[udpHeaderLen:]

	*out = append(*out, core.ProtocolLayer{
		Name:    "UDP",
		Display: fmt.Sprintf("User Datagram Protocol, Src Port: %d, Dst Port: %d", srcPort, dstPort),
		Fields: []core.ProtocolField{
			core.NewField("Source Port", fmt.Sprintf("%d", srcPort)),
			core.NewField("Destination Port", fmt.Sprintf("%d", dstPort)),
			core.NewField("Length", fmt.Sprintf("%d", length)),
			core.NewField("Checksum", fmt.Sprintf("0x%04x", checksum)),
			core.NewField("UDP payload", fmt.Sprintf("%d bytes", len(payload))),
		},
	})

	s := summary{
		src:  fmt.Sprintf("%s:%d", srcIP, srcPort),
		dst:  fmt.Sprintf("%s:%d", dstIP, dstPort),
		info: fmt.Sprintf("%d→%d Len=%d", srcPort, dstPort, length),
	}
	if srcPort == dnsPort || dstPort == dnsPort {
		s.protocol = core.ProtoDNS
		if layer, info, ok := decodeDNS(payload); ok {
			*out = append(*out, layer)
			s.info = info
		}
		return s
	}
	s.protocol = appProtocolUDP(srcPort, dstPort)
	return s
}

func decodeICMP(data []byte, out *[]core.ProtocolLayer, srcIP, dstIP string) summary {
	return decodeICMPCommon(data, out, srcIP, dstIP, core.ProtoICMP,
		"Internet Control Message Protocol", icmpTypeName)
}

func decodeICMPv6(data []byte, out *[]core.ProtocolLayer, srcIP, dstIP string) summary {
	return decodeICMPCommon(data, out, srcIP, dstIP, core.ProtoICMPv6,
		"Internet Control Message Protocol v6", icmpv6TypeName)
}

// decodeICMPCommon handles the shared type/code/checksum prefix of ICMP and ICMPv6.
func decodeICMPCommon(data []byte, out *[]core.ProtocolLayer, srcIP, dstIP, proto, title string,
	typeName func(uint8) string) summary {
	if len(data) < icmpHeaderLen {
		return summary{src: srcIP, dst: dstIP, protocol: proto, info: "Malformed " + proto}
	}

	typ := data[0]
	code := data[1]
	checksum := binary.BigEndian.Uint16(data[2:4])
	name := typeName(typ)

	*out = append(*out, core.ProtocolLayer{
		Name:    proto,
		Display: fmt.Sprintf("%s (%s)", title, name),
		Fields: []core.ProtocolField{
			core.NewField("Type", fmt.Sprintf("%d (%s)", typ, name)),
			core.NewField("Code", fmt.Sprintf("%d", code)),
			core.NewField("Checksum", fmt.Sprintf("0x%04x", checksum)),
		},
	})

	return summary{
		src:      srcIP,
		dst:      dstIP,
		protocol: proto,
		info:     fmt.Sprintf("%s (type=%d, code=%d)", name, typ, code),
	}
}
