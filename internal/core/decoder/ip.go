// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/netcarve/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40

	// Protocol numbers
	protocolICMP   = 1
	protocolTCP    = 6
	protocolUDP    = 17
	protocolICMPv6 = 58
)

// decodeIPv4 decodes an IPv4 header and dispatches on the protocol number.
func decodeIPv4(data []byte, out *[]core.ProtocolLayer) summary {
	if len(data) < ipv4HeaderMinLen {
		return summary{protocol: "IPv4", info: "Malformed IPv4"}
	}

	version := data[0] >> 4
	ihl := data[0] & 0x0F
	dscp := data[1] >> 2
	ecn := data[1] & 0x03
	totalLen := binary.BigEndian.Uint16(data[2:4])
	ident := binary.BigEndian.Uint16(data[4:6])

	// Flags (3 bits) and Fragment Offset (13 bits) at offset 6
	flagsFrag := binary.BigEndian.Uint16(data[6:8])
	flags := uint8(flagsFrag >> 13)
	fragOff := flagsFrag & 0x1FFF

	ttl := data[8]
	proto := data[9]
	checksum := binary.BigEndian.Uint16(data[10:12])
	src := netip.AddrFrom4([4]byte(data[12:16])).String()
	dst := netip.AddrFrom4([4]byte(data[16:20])).String()

	reserved := flags&0b100 != 0
	df := flags&0b010 != 0
	mf := flags&0b001 != 0
	flagsValue := ""
	if df {
		flagsValue += ", Don't fragment"
	}
	if mf {
		flagsValue += ", More fragments"
	}

	*out = append(*out, core.ProtocolLayer{
		Name:    "IPv4",
		Display: fmt.Sprintf("Internet Protocol Version 4, Src: %s, Dst: %s", src, dst),
		Fields: []core.ProtocolField{
			core.NewField(fmt.Sprintf("%04b .... = Version", version), fmt.Sprintf("%d", version)),
			core.NewField(fmt.Sprintf(".... %04b = Header Length", ihl), fmt.Sprintf("%d bytes (%d)", int(ihl)*4, ihl)),
			core.NewFieldWithChildren(
				"Differentiated Services Field",
				fmt.Sprintf("0x%02x (DSCP: 0x%02x, ECN: 0x%02x)", data[1], dscp, ecn),
				[]core.ProtocolField{
					core.NewField(fmt.Sprintf("%06b.. = DSCP", dscp), dscpName(dscp)),
					core.NewField(fmt.Sprintf("......%02b = ECN", ecn), ecnName(ecn)),
				},
			),
			core.NewField("Total Length", fmt.Sprintf("%d", totalLen)),
			core.NewField("Identification", fmt.Sprintf("0x%04x (%d)", ident, ident)),
			core.NewFieldWithChildren(
				fmt.Sprintf("Flags: 0x%02x", flags),
				flagsValue,
				[]core.ProtocolField{
					core.NewField(bitChar(reserved)+".. .... = Reserved bit", setString(reserved)),
					core.NewField("."+bitChar(df)+". .... = Don't fragment", setString(df)),
					core.NewField(".."+bitChar(mf)+" .... = More fragments", setString(mf)),
				},
			),
			core.NewField("Fragment Offset", fmt.Sprintf("%d", fragOff)),
			core.NewField("Time to Live", fmt.Sprintf("%d", ttl)),
			core.NewField("Protocol", fmt.Sprintf("%s (%d)", ipProtocolName(proto), proto)),
			core.NewField("Header Checksum", fmt.Sprintf("0x%04x", checksum)),
			core.NewField("Source Address", src),
			core.NewField("Destination Address", dst),
		},
	})

	payload := ipv4Payload(data, int(ihl)*4, int(totalLen))

	switch proto {
	case protocolTCP:
		return decodeTCP(payload, out, src, dst)
	case protocolUDP:
		return decodeUDP(payload, out, src, dst)
	case protocolICMP:
		return decodeICMP(payload, out, src, dst)
	default:
		name := ipProtocolName(proto)
		return summary{src: src, dst: dst, protocol: name, info: "IP Protocol: " + name}
	}
}

// ipv4Payload bounds the payload by the header and total length fields,
// dropping Ethernet trailer padding. Out-of-range lengths are clamped.
func ipv4Payload(data []byte, headerLen, totalLen int) []byte {
	if headerLen < ipv4HeaderMinLen {
		headerLen = ipv4HeaderMinLen
	}
	if headerLen > len(data) {
		return nil
	}
	end := len(data)
	if totalLen >= headerLen && totalLen < end {
		end = totalLen
	}
	return data[headerLen:end]
}

// decodeIPv6 decodes the fixed IPv6 header. Extension headers are not walked;
// their next-header value is reported as a generic protocol.
func decodeIPv6(data []byte, out *[]core.ProtocolLayer) summary {
	if len(data) < ipv6HeaderLen {
		return summary{protocol: "IPv6", info: "Malformed IPv6"}
	}

	// Payload Length (2 bytes at offset 4)
	payloadLen := binary.BigEndian.Uint16(data[4:6])
	// Next Header (1 byte at offset 6)
	next := data[6]
	// Hop Limit (1 byte at offset 7)
	hop := data[7]
	src := netip.AddrFrom16([16]byte(data[8:24])).String()
	dst := netip.AddrFrom16([16]byte(data[24:40])).String()

	*out = append(*out, core.ProtocolLayer{
		Name:    "IPv6",
		Display: fmt.Sprintf("Internet Protocol Version 6, Src: %s, Dst: %s", src, dst),
		Fields: []core.ProtocolField{
			core.NewField("Version", "6"),
			core.NewField("Payload Length", fmt.Sprintf("%d", payloadLen)),
			core.NewField("Next Header", fmt.Sprintf("%s (%d)", ipProtocolName(next), next)),
			core.NewField("Hop Limit", fmt.Sprintf("%d", hop)),
			core.NewField("Source Address", src),
			core.NewField("Destination Address", dst),
		},
	})

	payload := data[ipv6HeaderLen:]
	if int(payloadLen) < len(payload) {
		payload = payload[:payloadLen]
	}

	switch next {
	case protocolTCP:
		return decodeTCP(payload, out, src, dst)
	case protocolUDP:
		return decodeUDP(payload, out, src, dst)
	case protocolICMPv6:
		return decodeICMPv6(payload, out, src, dst)
	default:
		name := ipProtocolName(next)
		return summary{src: src, dst: dst, protocol: name, info: "IPv6 Next Header: " + name}
	}
}
