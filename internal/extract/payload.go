package extract

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
)

const (
	ethernetHeaderLen = 14
	ipv6HeaderLen     = 40
	udpHeaderLen      = 8
	tcpDefaultHdrLen  = 20
)

// StreamKey identifies a conversation regardless of direction.
func StreamKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}

// transportPayload returns the best-effort application payload of an
// Ethernet frame. Non-IP frames are returned whole. Ethernet padding past the
// IP datagram is not payload.
func transportPayload(raw []byte) []byte {
	if len(raw) < ethernetHeaderLen {
		return nil
	}

	var (
		transportStart int
		proto          byte
		ipEnd          = len(raw)
	)
	switch binary.BigEndian.Uint16(raw[12:14]) {
	case 0x0800:
		if len(raw) < ethernetHeaderLen+20 {
			return nil
		}
		ipHeaderLen := int(raw[ethernetHeaderLen]&0x0F) * 4
		transportStart = ethernetHeaderLen + ipHeaderLen
		// Protocol (1 byte at offset 9)
		proto = raw[ethernetHeaderLen+9]
		// Total Length (2 bytes at offset 2)
		if total := int(binary.BigEndian.Uint16(raw[ethernetHeaderLen+2:])); total >= ipHeaderLen {
			ipEnd = min(ipEnd, ethernetHeaderLen+total)
		}
	case 0x86DD:
		if len(raw) < ethernetHeaderLen+ipv6HeaderLen {
			return nil
		}
		transportStart = ethernetHeaderLen + ipv6HeaderLen
		// Next Header (1 byte at offset 6)
		proto = raw[ethernetHeaderLen+6]
		// Payload Length (2 bytes at offset 4)
		payloadLen := int(binary.BigEndian.Uint16(raw[ethernetHeaderLen+4:]))
		ipEnd = min(ipEnd, transportStart+payloadLen)
	default:
		return raw
	}

	hdrLen := udpHeaderLen
	if proto == 6 {
		hdrLen = tcpDefaultHdrLen
		// Data offset (high nibble of TCP byte 12)
		if len(raw) > transportStart+12 {
			hdrLen = int(raw[transportStart+12]>>4) * 4
		}
	}

	start := transportStart + hdrLen
	if start >= ipEnd {
		return nil
	}
	return raw[start:ipEnd]
}

// portOf returns the port of an "ip:port" endpoint, or 0.
func portOf(endpoint string) int {
	i := strings.LastIndexByte(endpoint, ':')
	if i < 0 {
		return 0
	}
	p, err := strconv.ParseUint(endpoint[i+1:], 10, 16)
	if err != nil {
		return 0
	}
	return int(p)
}

// sortedKeys returns the map keys in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
