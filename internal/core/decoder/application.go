// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"firestige.xyz/netcarve/internal/core"
)

const dnsHeaderLen = 12

var httpMethods = []string{"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS "}

// decodeHTTP recognizes an HTTP/1.x request or status line at the start of a
// TCP payload. ok is false when neither matches.
func decodeHTTP(payload []byte) (layer core.ProtocolLayer, info string, ok bool) {
	text := strings.ToValidUTF8(string(payload), "\uFFFD")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	first := lines[0]

	if hasAnyPrefix(first, httpMethods) {
		parts := strings.SplitN(first, " ", 3)
		method, uri, version := parts[0], parts[1], "HTTP/1.1"
		if len(parts) == 3 {
			version = parts[2]
		}
		fields := []core.ProtocolField{
			core.NewField("Request Method", method),
			core.NewField("Request URI", uri),
			core.NewField("Request Version", version),
		}
		var host string
		for _, h := range headerFields(lines[1:]) {
			if strings.EqualFold(h.Name, "host") {
				host = h.Value
			}
			fields = append(fields, h)
		}
		return core.ProtocolLayer{
			Name:    "HTTP",
			Display: fmt.Sprintf("Hypertext Transfer Protocol (%s %s)", method, uri),
			Fields:  fields,
		}, fmt.Sprintf("%s %s %s", method, uri, host), true
	}

	if strings.HasPrefix(first, "HTTP/") {
		parts := strings.SplitN(first, " ", 3)
		if len(parts) < 2 {
			return core.ProtocolLayer{}, "", false
		}
		version, status, reason := parts[0], parts[1], ""
		if len(parts) == 3 {
			reason = parts[2]
		}
		fields := []core.ProtocolField{
			core.NewField("Response Version", version),
			core.NewField("Status Code", status),
			core.NewField("Response Phrase", reason),
		}
		fields = append(fields, headerFields(lines[1:])...)
		return core.ProtocolLayer{
			Name:    "HTTP",
			Display: fmt.Sprintf("Hypertext Transfer Protocol (%s %s)", status, reason),
			Fields:  fields,
		}, fmt.Sprintf("%s %s %s", version, status, reason), true
	}

	return core.ProtocolLayer{}, "", false
}

// headerFields reads "Key: Value" lines up to the first blank line.
func headerFields(lines []string) []core.ProtocolField {
	var fields []core.ProtocolField
	for _, line := range lines {
		if line == "" {
			break
		}
		if k, v, found := strings.Cut(line, ":"); found {
			fields = append(fields, core.NewField(strings.TrimSpace(k), strings.TrimSpace(v)))
		}
	}
	return fields
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// decodeDNS parses the header, the first question and, for responses, any
// A records among the answers. Compression pointers in answer names are
// skipped, not followed.
func decodeDNS(payload []byte) (layer core.ProtocolLayer, info string, ok bool) {
	if len(payload) < dnsHeaderLen {
		return core.ProtocolLayer{}, "", false
	}

	id := binary.BigEndian.Uint16(payload[0:2])
	flags := binary.BigEndian.Uint16(payload[2:4])
	qr := (flags >> 15) & 1
	opcode := (flags >> 11) & 0xF
	rcode := flags & 0xF
	qdcount := binary.BigEndian.Uint16(payload[4:6])
	ancount := binary.BigEndian.Uint16(payload[6:8])

	isResponse := qr == 1
	kind, qrText := "Standard query", "Message is a query"
	if isResponse {
		kind, qrText = "Standard query response", "Message is a response"
	}

	fields := []core.ProtocolField{
		core.NewField("Transaction ID", fmt.Sprintf("0x%04x", id)),
		core.NewFieldWithChildren(fmt.Sprintf("Flags: 0x%04x", flags), kind, []core.ProtocolField{
			core.NewField(fmt.Sprintf("%d .... .... .... = Response", qr), qrText),
			core.NewField(fmt.Sprintf(".%04b ... .... .... = Opcode", opcode), fmt.Sprintf("%d", opcode)),
		}),
		core.NewField("Questions", fmt.Sprintf("%d", qdcount)),
		core.NewField("Answer RRs", fmt.Sprintf("%d", ancount)),
	}

	domain, offset := readQueryName(payload, dnsHeaderLen)

	qtypeName := "Unknown"
	if offset+4 <= len(payload) {
		qtype := binary.BigEndian.Uint16(payload[offset : offset+2])
		qtypeName = dnsTypeName(qtype)
		fields = append(fields,
			core.NewField("Query Name", domain),
			core.NewField("Query Type", fmt.Sprintf("%s (%d)", qtypeName, qtype)),
		)
		offset += 4
	}

	var resolved []string
	if isResponse && ancount > 0 {
		resolved = readARecords(payload, offset, int(ancount))
		if len(resolved) > 0 {
			fields = append(fields, core.NewField("Resolved Addresses", strings.Join(resolved, ", ")))
		}
	}

	display := "Domain Name System (query) - " + domain
	switch {
	case !isResponse:
		info = fmt.Sprintf("Standard query %s %s", qtypeName, domain)
	case rcode != 0:
		info = fmt.Sprintf("Standard query response %s (error %d)", domain, rcode)
	case len(resolved) > 0:
		info = fmt.Sprintf("Standard query response %s %s", domain, strings.Join(resolved, " "))
	default:
		info = "Standard query response " + domain
	}
	if isResponse {
		display = "Domain Name System (response) - " + domain
	}

	return core.ProtocolLayer{Name: "DNS", Display: display, Fields: fields}, info, true
}

// readQueryName walks length-prefixed labels to the zero terminator and
// returns the dotted name plus the offset just past it. Labels that are not
// valid UTF-8 are dropped.
func readQueryName(payload []byte, offset int) (string, int) {
	var labels []string
	for offset < len(payload) {
		n := int(payload[offset])
		if n == 0 {
			offset++
			break
		}
		if offset+1+n > len(payload) {
			break
		}
		label := payload[offset+1 : offset+1+n]
		if utf8.Valid(label) {
			labels = append(labels, string(label))
		}
		offset += 1 + n
	}
	return strings.Join(labels, "."), offset
}

// readARecords walks count resource records starting at offset and returns
// the dotted-quad rdata of every type-1 record with a 4-byte rdata.
func readARecords(payload []byte, offset, count int) []string {
	var addrs []string
	for i := 0; i < count; i++ {
		if offset >= len(payload) {
			break
		}
		// Skip owner name
		if payload[offset]&0xC0 == 0xC0 {
			offset += 2
		} else {
			for offset < len(payload) && payload[offset] != 0 {
				offset += int(payload[offset]) + 1
			}
			offset++
		}

		if offset+10 > len(payload) {
			break
		}
		rtype := binary.BigEndian.Uint16(payload[offset : offset+2])
		rdlen := int(binary.BigEndian.Uint16(payload[offset+8 : offset+10]))
		offset += 10
		if offset+rdlen > len(payload) {
			break
		}
		if rtype == 1 && rdlen == 4 {
			addrs = append(addrs, fmt.Sprintf("%d.%d.%d.%d",
				payload[offset], payload[offset+1], payload[offset+2], payload[offset+3]))
		}
		offset += rdlen
	}
	return addrs
}
