// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket/layers"

	"firestige.xyz/netcarve/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
	arpIPv4Len        = 28

	// EtherType values
	etherTypeIPv4 = 0x0800
	etherTypeARP  = 0x0806
	etherTypeIPv6 = 0x86DD
)

type ethernetHeader struct {
	src, dst  string // colon-separated lower-case MACs
	etherType uint16
}

// decodeEthernet reads the fixed 14-byte Ethernet II header. Callers
// guarantee len(data) >= ethernetHeaderLen.
func decodeEthernet(data []byte) (ethernetHeader, []byte) {
	eth := ethernetHeader{
		// Destination MAC (6 bytes at offset 0)
		dst: net.HardwareAddr(data[0:6]).String(),
		// Source MAC (6 bytes at offset 6)
		src: net.HardwareAddr(data[6:12]).String(),
		// EtherType (2 bytes at offset 12)
		etherType: binary.BigEndian.Uint16(data[12:14]),
	}
	return eth, data[ethernetHeaderLen:]
}

func (e ethernetHeader) layer() core.ProtocolLayer {
	srcVendor := macVendor(e.src)
	dstVendor := macVendor(e.dst)
	typeName := etherTypeName(e.etherType)
	if strings.HasPrefix(typeName, "0x") {
		typeName = "Unknown"
	}
	return core.ProtocolLayer{
		Name: "Ethernet",
		Display: fmt.Sprintf("Ethernet II, Src: %s (%s), Dst: %s (%s)",
			srcVendor, e.src, dstVendor, e.dst),
		Fields: []core.ProtocolField{
			core.NewField("Destination", fmt.Sprintf("%s (%s)", dstVendor, e.dst)),
			core.NewField("Source", fmt.Sprintf("%s (%s)", srcVendor, e.src)),
			core.NewField("Type", fmt.Sprintf("%s (0x%04x)", typeName, e.etherType)),
		},
	}
}

// etherTypeName uses gopacket's EtherType registry for display names and
// falls back to the hex value for types it does not know.
func etherTypeName(t uint16) string {
	name := layers.EthernetType(t).String()
	if strings.HasPrefix(name, "Unknown") {
		return fmt.Sprintf("0x%04x", t)
	}
	return name
}

// decodeARP decodes an Ethernet/IPv4 ARP body.
func decodeARP(data []byte, out *[]core.ProtocolLayer) summary {
	if len(data) < arpIPv4Len {
		return summary{protocol: core.ProtoARP, info: "Malformed ARP"}
	}

	// Operation (2 bytes at offset 6)
	op := binary.BigEndian.Uint16(data[6:8])
	senderMAC := net.HardwareAddr(data[8:14]).String()
	senderIP := net.IP(data[14:18]).String()
	targetMAC := net.HardwareAddr(data[18:24]).String()
	targetIP := net.IP(data[24:28]).String()

	opName := "unknown"
	switch op {
	case 1:
		opName = "request"
	case 2:
		opName = "reply"
	}

	*out = append(*out, core.ProtocolLayer{
		Name:    "ARP",
		Display: fmt.Sprintf("Address Resolution Protocol (%s)", opName),
		Fields: []core.ProtocolField{
			core.NewField("Hardware type", "Ethernet (1)"),
			core.NewField("Protocol type", "IPv4 (0x0800)"),
			core.NewField("Hardware size", "6"),
			core.NewField("Protocol size", "4"),
			core.NewField("Opcode", fmt.Sprintf("%s (%d)", opName, op)),
			core.NewField("Sender MAC address", senderMAC),
			core.NewField("Sender IP address", senderIP),
			core.NewField("Target MAC address", targetMAC),
			core.NewField("Target IP address", targetIP),
		},
	})

	info := fmt.Sprintf("%s is at %s", senderIP, senderMAC)
	if op == 1 {
		info = fmt.Sprintf("Who has %s? Tell %s", targetIP, senderIP)
	}
	return summary{src: senderIP, dst: targetIP, protocol: core.ProtoARP, info: info}
}
