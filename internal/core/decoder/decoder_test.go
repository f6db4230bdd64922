package decoder

import (
	"math/rand"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/netcarve/internal/core"
)

var (
	testSrcMAC = net.HardwareAddr{0x00, 0x50, 0x56, 0x01, 0x02, 0x03}
	testDstMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	testSrcIP  = net.IP{10, 0, 0, 1}
	testDstIP  = net.IP{10, 0, 0, 2}
)

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: t}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: testSrcIP, DstIP: testDstIP}
}

func tcpFrame(t testing.TB, tcp *layers.TCP, payload []byte) []byte {
	ip := ipv4(layers.IPProtocolTCP)
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(payload))
}

func udpFrame(t testing.TB, srcPort, dstPort uint16, payload []byte) []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload))
}

func mustLayer(t *testing.T, pkt *core.CapturedPacket, name string) *core.ProtocolLayer {
	t.Helper()
	l, ok := pkt.Layer(name)
	require.True(t, ok, "layer %s missing", name)
	return l
}

func mustField(t *testing.T, l *core.ProtocolLayer, name string) core.ProtocolField {
	t.Helper()
	f, ok := l.Field(name)
	require.True(t, ok, "field %q missing from %s", name, l.Name)
	return f
}

func TestDecodeRejectsShortFrames(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {0x01}, make([]byte, 13)} {
		pkt, err := Decode(1, raw, "eth0")
		assert.ErrorIs(t, err, core.ErrPacketTooShort)
		assert.Nil(t, pkt)
	}
}

func TestDecodeGarbageNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		raw := make([]byte, rng.Intn(200))
		rng.Read(raw)
		// Bias some frames toward the interesting EtherTypes.
		if len(raw) >= 14 {
			switch i % 4 {
			case 0:
				raw[12], raw[13] = 0x08, 0x00
			case 1:
				raw[12], raw[13] = 0x86, 0xDD
			case 2:
				raw[12], raw[13] = 0x08, 0x06
			}
		}
		assert.NotPanics(t, func() { _, _ = Decode(uint64(i), raw, "fuzz") })
	}
}

func TestDecodeFrameAndEthernetLayers(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	raw := udpFrame(t, 40000, 9999, []byte("hello"))
	pkt, err := Decode(7, raw, "eth0")
	require.NoError(t, err)

	assert.Equal(t, uint64(7), pkt.ID)
	assert.Equal(t, int64(1700000000123), pkt.Timestamp)
	assert.Equal(t, len(raw), pkt.Length)
	assert.Equal(t, raw, pkt.Raw)
	require.Len(t, pkt.Layers, 4)
	assert.Equal(t, []string{"Frame", "Ethernet", "IPv4", "UDP"},
		[]string{pkt.Layers[0].Name, pkt.Layers[1].Name, pkt.Layers[2].Name, pkt.Layers[3].Name})

	frame := &pkt.Layers[0]
	n := len(raw)
	assert.Equal(t, "Frame 7: "+strconv.Itoa(n*8)+" bytes on wire, "+strconv.Itoa(n)+" bytes captured on interface eth0", frame.Display)
	assert.Equal(t, "Ethernet (1)", mustField(t, frame, "Encapsulation type").Value)
	assert.Equal(t, strconv.Itoa(n)+" bytes ("+strconv.Itoa(n*8)+" bits)", mustField(t, frame, "Frame Length").Value)

	eth := &pkt.Layers[1]
	assert.Equal(t, "Ethernet II, Src: VMware (00:50:56:01:02:03), Dst: AABBCC (aa:bb:cc:dd:ee:ff)", eth.Display)
	assert.Equal(t, "IPv4 (0x0800)", mustField(t, eth, "Type").Value)

	// The raw copy is independent of the caller's buffer.
	raw[0] ^= 0xFF
	assert.NotEqual(t, raw[0], pkt.Raw[0])
}

func TestDecodeIPv4Fields(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP)
	ip.TOS = 0xB8 // DSCP 46, ECN 0
	ip.Id = 0x1c46
	ip.Flags = layers.IPv4DontFragment
	udp := &layers.UDP{SrcPort: 5000, DstPort: 5001}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	raw := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload([]byte{1, 2, 3}))

	pkt, err := Decode(1, raw, "eth0")
	require.NoError(t, err)
	l := mustLayer(t, pkt, "IPv4")

	assert.Equal(t, "Internet Protocol Version 4, Src: 10.0.0.1, Dst: 10.0.0.2", l.Display)
	assert.Equal(t, "4", mustField(t, l, "0100 .... = Version").Value)
	assert.Equal(t, "20 bytes (5)", mustField(t, l, ".... 0101 = Header Length").Value)

	ds := mustField(t, l, "Differentiated Services Field")
	assert.Equal(t, "0xb8 (DSCP: 0x2e, ECN: 0x00)", ds.Value)
	require.Len(t, ds.Children, 2)
	assert.Equal(t, core.NewField("101110.. = DSCP", "EF (46)"), ds.Children[0])
	assert.Equal(t, core.NewField("......00 = ECN", "Not-ECT"), ds.Children[1])

	assert.Equal(t, "0x1c46 (7238)", mustField(t, l, "Identification").Value)

	flags := mustField(t, l, "Flags: 0x02")
	assert.Equal(t, ", Don't fragment", flags.Value)
	assert.Equal(t, []core.ProtocolField{
		core.NewField("0.. .... = Reserved bit", "Not set"),
		core.NewField(".1. .... = Don't fragment", "Set"),
		core.NewField("..0 .... = More fragments", "Not set"),
	}, flags.Children)

	assert.Equal(t, "64", mustField(t, l, "Time to Live").Value)
	assert.Equal(t, "UDP (17)", mustField(t, l, "Protocol").Value)
	assert.Equal(t, "10.0.0.1", mustField(t, l, "Source Address").Value)
}

func TestDecodeTCPFlagsPushAck(t *testing.T) {
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 9000, Seq: 1, Ack: 2, PSH: true, ACK: true, Window: 512}
	pkt, err := Decode(1, tcpFrame(t, tcp, []byte("binary-ish payload")), "eth0")
	require.NoError(t, err)

	l := mustLayer(t, pkt, "TCP")
	flags := mustField(t, l, "Flags: 0x018 (ACK, PSH)")
	assert.Equal(t, "ACK, PSH", flags.Value)

	set := map[string]bool{}
	for _, c := range flags.Children {
		set[c.Name] = c.Value == "Set"
	}
	assert.Equal(t, map[string]bool{
		"0....... = Congestion Window Reduced (CWR)": false,
		".0...... = ECN-Echo":                        false,
		"..0..... = Urgent":                          false,
		"...1.... = Acknowledgment":                  true,
		"....1... = Push":                            true,
		".....0.. = Reset":                           false,
		"......0. = Syn":                             false,
		".......0 = Fin":                             false,
	}, set)
	assert.Equal(t, "18", mustField(t, l, "TCP Segment Len").Value)
	assert.Equal(t, "10.0.0.1:40000", pkt.Src)
	assert.Equal(t, "10.0.0.2:9000", pkt.Dst)
	assert.Equal(t, "TCP", pkt.Protocol)
}

func TestTCPFlagsShortOrder(t *testing.T) {
	tests := []struct {
		flags uint8
		want  string
	}{
		{0x00, ""},
		{0x02, "SYN"},
		{0x12, "SYN, ACK"},
		{0x18, "ACK, PSH"},
		{0x11, "ACK, FIN"},
		{0x3F, "SYN, ACK, FIN, RST, PSH, URG"},
		{0xC0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tcpFlagsShort(tt.flags), "flags 0x%02x", tt.flags)
	}
}

func TestDecodeBareSYNGuessesHTTP(t *testing.T) {
	tcp := &layers.TCP{SrcPort: 54321, DstPort: 80, Seq: 1000, SYN: true, Window: 65535}
	pkt, err := Decode(1, tcpFrame(t, tcp, nil), "eth0")
	require.NoError(t, err)

	assert.Equal(t, "HTTP", pkt.Protocol)
	assert.Equal(t, "54321→80 [SYN] Seq=1000 Ack=0 Win=65535 Len=0", pkt.Info)
	_, hasHTTP := pkt.Layer("HTTP")
	assert.False(t, hasHTTP)
}

func TestDecodeHTTPRequest(t *testing.T) {
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 8080, PSH: true, ACK: true}
	payload := []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\nUser-Agent: curl/8.0\r\n\r\n")
	pkt, err := Decode(1, tcpFrame(t, tcp, payload), "eth0")
	require.NoError(t, err)

	assert.Equal(t, "HTTP", pkt.Protocol)
	assert.Equal(t, "GET /index.html example.com", pkt.Info)
	l := mustLayer(t, pkt, "HTTP")
	assert.Equal(t, "Hypertext Transfer Protocol (GET /index.html)", l.Display)
	assert.Equal(t, "HTTP/1.1", mustField(t, l, "Request Version").Value)
	assert.Equal(t, "example.com", mustField(t, l, "Host").Value)
	assert.Equal(t, "curl/8.0", mustField(t, l, "User-Agent").Value)
}

func TestDecodeHTTPResponse(t *testing.T) {
	layer, info, ok := decodeHTTP([]byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"))
	require.True(t, ok)
	assert.Equal(t, "HTTP/1.1 404 Not Found", info)
	assert.Equal(t, "Hypertext Transfer Protocol (404 Not Found)", layer.Display)
	assert.Equal(t, []core.ProtocolField{
		core.NewField("Response Version", "HTTP/1.1"),
		core.NewField("Status Code", "404"),
		core.NewField("Response Phrase", "Not Found"),
		core.NewField("Content-Length", "0"),
	}, layer.Fields)

	for _, p := range []string{"", "HTTP/", "PATCH / HTTP/1.1", "\x00\x01\x02"} {
		_, _, ok := decodeHTTP([]byte(p))
		assert.False(t, ok, "%q", p)
	}
}

// dnsQuery builds a query for name with the given qtype.
func dnsQuery(id uint16, name string, qtype uint16) []byte {
	msg := []byte{byte(id >> 8), byte(id), 0x01, 0x00, 0, 1, 0, 0, 0, 0, 0, 0}
	msg = append(msg, encodeName(name)...)
	return append(msg, byte(qtype>>8), byte(qtype), 0x00, 0x01)
}

func encodeName(name string) []byte {
	var out []byte
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			out = append(out, byte(i-start))
			out = append(out, name[start:i]...)
			start = i + 1
		}
	}
	return append(out, 0)
}

func TestDecodeDNSQuery(t *testing.T) {
	pkt, err := Decode(1, udpFrame(t, 53000, 53, dnsQuery(0xabcd, "example.com", 1)), "eth0")
	require.NoError(t, err)

	assert.Equal(t, "DNS", pkt.Protocol)
	assert.Equal(t, "Standard query A example.com", pkt.Info)
	l := mustLayer(t, pkt, "DNS")
	assert.Equal(t, "Domain Name System (query) - example.com", l.Display)
	assert.Equal(t, "0xabcd", mustField(t, l, "Transaction ID").Value)
	assert.Equal(t, "example.com", mustField(t, l, "Query Name").Value)
	assert.Equal(t, "A (1)", mustField(t, l, "Query Type").Value)

	flags := mustField(t, l, "Flags: 0x0100")
	assert.Equal(t, "Standard query", flags.Value)
	assert.Equal(t, core.NewField("0 .... .... .... = Response", "Message is a query"), flags.Children[0])
	assert.Equal(t, core.NewField(".0000 ... .... .... = Opcode", "0"), flags.Children[1])
}

func TestDecodeDNSResponseWithAnswers(t *testing.T) {
	msg := dnsQuery(0x0001, "example.com", 1)
	msg[2], msg[3] = 0x81, 0x80 // QR, RD, RA
	msg[7] = 2                  // ANCOUNT
	for _, ip := range [][4]byte{{93, 184, 216, 34}, {93, 184, 216, 35}} {
		msg = append(msg, 0xC0, 0x0C, 0, 1, 0, 1, 0, 0, 0x0e, 0x10, 0, 4)
		msg = append(msg, ip[:]...)
	}

	layer, info, ok := decodeDNS(msg)
	require.True(t, ok)
	assert.Equal(t, "Standard query response example.com 93.184.216.34 93.184.216.35", info)
	assert.Equal(t, "Domain Name System (response) - example.com", layer.Display)
	f, found := layer.Field("Resolved Addresses")
	require.True(t, found)
	assert.Equal(t, "93.184.216.34, 93.184.216.35", f.Value)

	msg[3] = 0x83 // NXDOMAIN
	_, info, ok = decodeDNS(msg)
	require.True(t, ok)
	assert.Equal(t, "Standard query response example.com (error 3)", info)
}

func TestDecodeUDPPort53ForcesDNS(t *testing.T) {
	pkt, err := Decode(1, udpFrame(t, 53, 40000, []byte{1, 2, 3}), "eth0")
	require.NoError(t, err)
	assert.Equal(t, "DNS", pkt.Protocol)
	assert.Equal(t, "53→40000 Len=11", pkt.Info)
	_, hasDNS := pkt.Layer("DNS")
	assert.False(t, hasDNS)
}

func TestDecodeUDPPortGuess(t *testing.T) {
	tests := []struct {
		src, dst uint16
		want     string
	}{
		{40000, 123, "NTP"},
		{68, 67, "DHCP"},
		{40000, 138, "NetBIOS"},
		{5353, 5353, "mDNS"},
		{40000, 443, "QUIC"},
		{40000, 40001, "UDP"},
		{161, 40000, "SNMP"},
	}
	for _, tt := range tests {
		pkt, err := Decode(1, udpFrame(t, tt.src, tt.dst, []byte("x")), "eth0")
		require.NoError(t, err)
		assert.Equal(t, tt.want, pkt.Protocol, "%d→%d", tt.src, tt.dst)
	}
}

func TestDecodeICMPEcho(t *testing.T) {
	ip := ipv4(layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	raw := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, icmp, gopacket.Payload([]byte("ping")))

	pkt, err := Decode(1, raw, "eth0")
	require.NoError(t, err)
	assert.Equal(t, "ICMP", pkt.Protocol)
	assert.Equal(t, "Echo Request (type=8, code=0)", pkt.Info)
	assert.Equal(t, "10.0.0.1", pkt.Src)
	l := mustLayer(t, pkt, "ICMP")
	assert.Equal(t, "Internet Control Message Protocol (Echo Request)", l.Display)
	assert.Equal(t, "8 (Echo Request)", mustField(t, l, "Type").Value)
}

func TestDecodeIPv6ICMPv6(t *testing.T) {
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   255,
		SrcIP:      net.ParseIP("fe80::1"),
		DstIP:      net.ParseIP("ff02::1"),
	}
	icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeNeighborSolicitation, 0)}
	require.NoError(t, icmp.SetNetworkLayerForChecksum(ip))
	raw := serialize(t, ethernet(layers.EthernetTypeIPv6), ip, icmp, gopacket.Payload(make([]byte, 20)))

	pkt, err := Decode(1, raw, "eth0")
	require.NoError(t, err)
	assert.Equal(t, "ICMPv6", pkt.Protocol)
	assert.Equal(t, "Neighbor Solicitation (type=135, code=0)", pkt.Info)
	l := mustLayer(t, pkt, "IPv6")
	assert.Equal(t, "ICMPv6 (58)", mustField(t, l, "Next Header").Value)
	assert.Equal(t, "255", mustField(t, l, "Hop Limit").Value)
	assert.Equal(t, "fe80::1", pkt.Src)
}

func TestDecodeARP(t *testing.T) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   testSrcMAC,
		SourceProtAddress: testSrcIP.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    testDstIP.To4(),
	}
	raw := serialize(t, ethernet(layers.EthernetTypeARP), arp)

	pkt, err := Decode(3, raw, "eth0")
	require.NoError(t, err)
	assert.Equal(t, "ARP", pkt.Protocol)
	assert.Equal(t, "Who has 10.0.0.2? Tell 10.0.0.1", pkt.Info)
	assert.Equal(t, "10.0.0.1", pkt.Src)
	assert.Equal(t, "10.0.0.2", pkt.Dst)
	l := mustLayer(t, pkt, "ARP")
	assert.Equal(t, "Address Resolution Protocol (request)", l.Display)
	assert.Equal(t, "request (1)", mustField(t, l, "Opcode").Value)

	arp.Operation = layers.ARPReply
	pkt, err = Decode(4, serialize(t, ethernet(layers.EthernetTypeARP), arp), "eth0")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1 is at 00:50:56:01:02:03", pkt.Info)
}

func TestDecodeMalformedLayers(t *testing.T) {
	header := func(etherType uint16) []byte {
		raw := make([]byte, 14)
		raw[12], raw[13] = byte(etherType>>8), byte(etherType)
		return raw
	}

	tests := []struct {
		name  string
		raw   []byte
		proto string
		info  string
	}{
		{"ipv4", append(header(0x0800), 0x45, 0x00), "IPv4", "Malformed IPv4"},
		{"ipv6", append(header(0x86DD), 0x60), "IPv6", "Malformed IPv6"},
		{"arp", append(header(0x0806), 0x00, 0x01), "ARP", "Malformed ARP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := Decode(1, tt.raw, "eth0")
			require.NoError(t, err)
			assert.Equal(t, tt.proto, pkt.Protocol)
			assert.Equal(t, tt.info, pkt.Info)
			assert.Len(t, pkt.Layers, 2)
		})
	}

	// IPv4 claiming TCP with a 4-byte transport header.
	ip := append(header(0x0800), 0x45, 0, 0, 24, 0, 0, 0, 0, 64, 6, 0, 0, 10, 0, 0, 1, 10, 0, 0, 2, 0, 80, 0, 80)
	pkt, err := Decode(1, ip, "eth0")
	require.NoError(t, err)
	assert.Equal(t, "TCP", pkt.Protocol)
	assert.Equal(t, "Malformed TCP", pkt.Info)
	assert.Equal(t, "10.0.0.1", pkt.Src)
}

func TestDecodeUnknownEtherType(t *testing.T) {
	raw := serialize(t, ethernet(layers.EthernetType(0x88B5)), gopacket.Payload(make([]byte, 46)))
	pkt, err := Decode(1, raw, "eth0")
	require.NoError(t, err)
	assert.Equal(t, "Unknown EtherType", pkt.Info)
	assert.Equal(t, "0x88b5", pkt.Protocol)
	assert.Equal(t, "00:50:56:01:02:03", pkt.Src)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", pkt.Dst)

	eth, ok := pkt.Layer("Ethernet")
	require.True(t, ok)
	assert.Equal(t, "Unknown (0x88b5)", mustField(t, eth, "Type").Value)
}

func TestEtherTypeName(t *testing.T) {
	assert.Equal(t, "IPv4", etherTypeName(0x0800))
	assert.Equal(t, "ARP", etherTypeName(0x0806))
	assert.Equal(t, "0x88b5", etherTypeName(0x88b5))
	assert.Equal(t, "0x88b6", etherTypeName(0x88b6))
}

func TestDecodeOtherIPProtocol(t *testing.T) {
	ip := ipv4(layers.IPProtocol(89))
	raw := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, gopacket.Payload(make([]byte, 8)))
	pkt, err := Decode(1, raw, "eth0")
	require.NoError(t, err)
	assert.Equal(t, "OSPF", pkt.Protocol)
	assert.Equal(t, "IP Protocol: OSPF", pkt.Info)
}

func BenchmarkDecodeHTTPRequest(b *testing.B) {
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 80, PSH: true, ACK: true}
	raw := tcpFrame(b, tcp, []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(uint64(i), raw, "eth0")
	}
}
