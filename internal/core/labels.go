// Package core defines core types.
package core

// Protocol labels set on CapturedPacket.Protocol that other components key on.
const (
	ProtoTCP    = "TCP"
	ProtoUDP    = "UDP"
	ProtoICMP   = "ICMP"
	ProtoICMPv6 = "ICMPv6"
	ProtoDNS    = "DNS"
	ProtoHTTP   = "HTTP"
	ProtoARP    = "ARP"
	ProtoSMTP   = "SMTP"
	ProtoPOP3   = "POP3"
	ProtoIMAP   = "IMAP"
)

// ExtractedFile.SourceType values. The per-packet magic scan uses the
// packet's protocol label instead.
const (
	SourceHTTP       = "HTTP"
	SourceFTP        = "FTP"
	SourceEmail      = "EMAIL"
	SourceStream     = "STREAM"
	SourceBase64     = "BASE64"
	SourceDNSTunnel  = "DNS_TUNNEL"
	SourceICMPTunnel = "ICMP_TUNNEL"
)
