// Package decoder implements protocol decoding.
package decoder

import (
	"fmt"
	"strings"
)

var dscpNames = map[uint8]string{
	0:  "Default",
	8:  "CS1",
	16: "CS2",
	24: "CS3",
	32: "CS4",
	40: "CS5",
	46: "EF",
	48: "CS6",
	56: "CS7",
}

func dscpName(dscp uint8) string {
	if name, ok := dscpNames[dscp]; ok {
		return fmt.Sprintf("%s (%d)", name, dscp)
	}
	return fmt.Sprintf("Unknown (%d)", dscp)
}

func ecnName(ecn uint8) string {
	switch ecn {
	case 0:
		return "Not-ECT"
	case 1:
		return "ECT(1)"
	case 2:
		return "ECT(0)"
	case 3:
		return "CE"
	default:
		return fmt.Sprintf("Unknown (%d)", ecn)
	}
}

var icmpTypes = map[uint8]string{
	0:  "Echo Reply",
	3:  "Destination Unreachable",
	4:  "Source Quench",
	5:  "Redirect",
	8:  "Echo Request",
	9:  "Router Advertisement",
	10: "Router Solicitation",
	11: "Time Exceeded",
	12: "Parameter Problem",
	13: "Timestamp Request",
	14: "Timestamp Reply",
}

func icmpTypeName(t uint8) string {
	if name, ok := icmpTypes[t]; ok {
		return name
	}
	return "Unknown"
}

var icmpv6Types = map[uint8]string{
	1:   "Destination Unreachable",
	2:   "Packet Too Big",
	3:   "Time Exceeded",
	4:   "Parameter Problem",
	128: "Echo Request",
	129: "Echo Reply",
	130: "Multicast Listener Query",
	131: "Multicast Listener Report",
	132: "Multicast Listener Done",
	133: "Router Solicitation",
	134: "Router Advertisement",
	135: "Neighbor Solicitation",
	136: "Neighbor Advertisement",
	137: "Redirect Message",
	143: "Multicast Listener Report v2",
}

func icmpv6TypeName(t uint8) string {
	if name, ok := icmpv6Types[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", t)
}

var ipProtocols = map[uint8]string{
	1:   "ICMP",
	2:   "IGMP",
	6:   "TCP",
	17:  "UDP",
	41:  "IPv6",
	43:  "IPv6-Route",
	44:  "IPv6-Frag",
	50:  "ESP",
	51:  "AH",
	58:  "ICMPv6",
	59:  "IPv6-NoNxt",
	60:  "IPv6-Opts",
	89:  "OSPF",
	115: "L2TP",
}

func ipProtocolName(p uint8) string {
	if name, ok := ipProtocols[p]; ok {
		return name
	}
	return fmt.Sprintf("Protocol(%d)", p)
}

func dnsTypeName(t uint16) string {
	switch t {
	case 1:
		return "A"
	case 2:
		return "NS"
	case 5:
		return "CNAME"
	case 15:
		return "MX"
	case 28:
		return "AAAA"
	default:
		return "Unknown"
	}
}

// tcpFlagsShort lists set flags in SYN, ACK, FIN, RST, PSH, URG order.
// ECE and CWR are only shown in the bit breakdown.
func tcpFlagsShort(flags uint8) string {
	order := []struct {
		mask uint8
		name string
	}{
		{tcpSYN, "SYN"},
		{tcpACK, "ACK"},
		{tcpFIN, "FIN"},
		{tcpRST, "RST"},
		{tcpPSH, "PSH"},
		{tcpURG, "URG"},
	}
	var parts []string
	for _, f := range order {
		if flags&f.mask != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ", ")
}

// isWellKnownPort reports whether port identifies a service rather than an
// ephemeral client port.
func isWellKnownPort(port uint16) bool {
	if port < 1024 {
		return true
	}
	switch port {
	case 3306, 5432, 6379, 27017, 3389, 8080, 8443, 3000, 8000, 5353, 5355:
		return true
	}
	return false
}

// servicePort picks the destination port when it is well known, else the source.
func servicePort(srcPort, dstPort uint16) uint16 {
	if isWellKnownPort(dstPort) {
		return dstPort
	}
	return srcPort
}

func appProtocolTCP(srcPort, dstPort uint16) string {
	switch servicePort(srcPort, dstPort) {
	case 80, 8080, 8000, 3000:
		return "HTTP"
	case 443, 8443:
		return "TLS"
	case 21:
		return "FTP"
	case 22:
		return "SSH"
	case 23:
		return "Telnet"
	case 25, 587, 465:
		return "SMTP"
	case 110, 995:
		return "POP3"
	case 143, 993:
		return "IMAP"
	case 53:
		return "DNS"
	case 3306:
		return "MySQL"
	case 5432:
		return "PostgreSQL"
	case 6379:
		return "Redis"
	case 27017:
		return "MongoDB"
	case 3389:
		return "RDP"
	default:
		return "TCP"
	}
}

func appProtocolUDP(srcPort, dstPort uint16) string {
	switch port := servicePort(srcPort, dstPort); {
	case port == 53:
		return "DNS"
	case port == 67 || port == 68:
		return "DHCP"
	case port == 69:
		return "TFTP"
	case port == 123:
		return "NTP"
	case port >= 137 && port <= 139:
		return "NetBIOS"
	case port == 161 || port == 162:
		return "SNMP"
	case port == 443:
		return "QUIC"
	case port == 5353:
		return "mDNS"
	case port == 5355:
		return "LLMNR"
	default:
		return "UDP"
	}
}

var macVendors = map[string]string{
	"00:1A:2B": "VMware",
	"00:50:56": "VMware",
	"00:0C:29": "VMware",
	"08:00:27": "VirtualBox",
	"52:54:00": "QEMU",
	"00:15:5D": "Hyper-V",
	"A0:36:BC": "ASUSTek",
	"84:87:FF": "Shenzhen",
}

// macVendor returns a best-effort vendor for a colon-separated MAC, falling
// back to the upper-case OUI hex.
func macVendor(mac string) string {
	parts := strings.SplitN(mac, ":", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	prefix := strings.ToUpper(strings.Join(parts, ":"))
	if vendor, ok := macVendors[prefix]; ok {
		return vendor
	}
	return strings.ReplaceAll(prefix, ":", "")
}
