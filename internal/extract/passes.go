package extract

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"firestige.xyz/netcarve/internal/core"
)

const (
	ftpDataOffset  = 54 // Ethernet + IPv4 + TCP without options
	icmpDataOffset = 42 // Ethernet + IPv4 + ICMP echo header
	minPacketScan  = 50
	minBase64Match = 100
	minTunnelData  = 20
	minAttachment  = 10
)

var (
	httpMarkers    = [][]byte{[]byte("HTTP/1."), []byte("HTTP/2")}
	httpOKStatuses = [][]byte{[]byte(" 200 "), []byte(" 206 "), []byte(" 304 ")}
	emailCues      = []string{"MAIL FROM:", "DATA\r\n", "Content-Transfer-Encoding:"}
	headerEnd      = []byte("\r\n\r\n")

	base64Pattern = regexp.MustCompile(`(?:[A-Za-z0-9+/]{4}){10,}(?:[A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=)?`)
)

// httpFiles collects successful HTTP response bodies. A response runs from
// its status line until the next response in the stream; only packets sent
// by the responder extend it.
func httpFiles(stream []*core.CapturedPacket, key string) []core.ExtractedFile {
	var (
		files []core.ExtractedFile
		cur   *candidate
	)
	flush := func() {
		if cur == nil || len(cur.data) == 0 {
			return
		}
		if f, ok := cur.build(); ok {
			files = append(files, f)
		}
	}

	for _, pkt := range stream {
		if containsAny(pkt.Raw, httpMarkers) {
			if !containsAny(pkt.Raw, httpOKStatuses) {
				continue
			}
			flush()
			cur = &candidate{
				src:        pkt.Src,
				dst:        pkt.Dst,
				packetIDs:  []uint64{pkt.ID},
				streamKey:  key,
				sourceType: core.SourceHTTP,
			}
			cur.contentType, cur.filename = httpFileHeaders(string(pkt.Raw))
			if i := bytes.Index(pkt.Raw, headerEnd); i >= 0 {
				cur.data = append(cur.data, pkt.Raw[i+len(headerEnd):]...)
			}
			continue
		}
		if cur != nil && pkt.Src == cur.src {
			cur.packetIDs = append(cur.packetIDs, pkt.ID)
			cur.data = append(cur.data, transportPayload(pkt.Raw)...)
		}
	}
	flush()
	return files
}

// httpFileHeaders pulls Content-Type and the Content-Disposition filename.
func httpFileHeaders(text string) (contentType, filename string) {
	for _, line := range splitLines(text) {
		lower := asciiLower(line)
		switch {
		case strings.HasPrefix(lower, "content-type:"):
			contentType = strings.TrimSpace(line[len("content-type:"):])
		case strings.HasPrefix(lower, "content-disposition:"):
			if i := strings.Index(lower, "filename="); i >= 0 {
				filename = trimQuotes(line[i+len("filename="):])
			}
		}
	}
	return contentType, filename
}

// ftpFiles follows RETR / 150 / 226 exchanges. Data packets are recognised by
// ports alone (20, or both ends above 1024) and read from a fixed offset, so
// ordinary high-port TCP traffic that happens to contain "226 " is carved too.
func ftpFiles(stream []*core.CapturedPacket, key string) []core.ExtractedFile {
	var (
		files    []core.ExtractedFile
		filename string
		data     []byte
		ids      []uint64
		src, dst string
	)

	for _, pkt := range stream {
		text := string(pkt.Raw)

		if i := strings.Index(text, "RETR "); i >= 0 {
			filename = strings.TrimSpace(firstLine(text[i+len("RETR "):]))
		}

		if strings.Contains(text, "150 ") || strings.Contains(text, "125 ") {
			data, ids = nil, nil
			src, dst = pkt.Src, pkt.Dst
		}

		srcPort, dstPort := portOf(pkt.Src), portOf(pkt.Dst)
		dataPorts := srcPort == 20 || dstPort == 20 || (srcPort > 1024 && dstPort > 1024)
		if dataPorts && pkt.Protocol == core.ProtoTCP && len(pkt.Raw) > 60 {
			payload := pkt.Raw[ftpDataOffset:]
			if !bytes.HasPrefix(payload, []byte("220 ")) && !bytes.HasPrefix(payload, []byte("USER ")) {
				data = append(data, payload...)
				ids = append(ids, pkt.ID)
				if src == "" {
					src, dst = pkt.Src, pkt.Dst
				}
			}
		}

		if strings.Contains(text, "226 ") && len(data) > 0 {
			name := filename
			if name == "" {
				name = "ftp_transfer"
			}
			c := candidate{
				data:       data,
				filename:   name,
				src:        src,
				dst:        dst,
				packetIDs:  ids,
				streamKey:  key,
				sourceType: core.SourceFTP,
			}
			if f, ok := c.build(); ok {
				files = append(files, f)
			}
			data, ids = nil, nil
		}
	}
	return files
}

// emailFiles concatenates the mail traffic of a stream and decodes its MIME
// attachments.
func emailFiles(stream []*core.CapturedPacket, key string) []core.ExtractedFile {
	var (
		text     strings.Builder
		ids      []uint64
		src, dst string
	)
	for _, pkt := range stream {
		payload := string(transportPayload(pkt.Raw))
		if !isEmail(pkt.Protocol, payload) {
			continue
		}
		text.WriteString(payload)
		ids = append(ids, pkt.ID)
		if src == "" {
			src, dst = pkt.Src, pkt.Dst
		}
	}
	if text.Len() == 0 {
		return nil
	}
	return mimeAttachments(text.String(), src, dst, ids, key)
}

func isEmail(protocol, payload string) bool {
	switch protocol {
	case core.ProtoSMTP, core.ProtoPOP3, core.ProtoIMAP:
		return true
	}
	for _, cue := range emailCues {
		if strings.Contains(payload, cue) {
			return true
		}
	}
	return false
}

func mimeAttachments(data, src, dst string, ids []uint64, key string) []core.ExtractedFile {
	boundary := mimeBoundary(data)
	if boundary == "" {
		return nil
	}

	var files []core.ExtractedFile
	for _, part := range strings.Split(data, "--"+boundary) {
		lower := asciiLower(part)
		if !strings.Contains(lower, "content-disposition: attachment") &&
			!strings.Contains(lower, "content-transfer-encoding: base64") {
			continue
		}

		filename, contentType := "attachment", ""
		lines := splitLines(part)
		for _, l := range lines {
			if strings.Contains(asciiLower(l), "filename=") {
				if _, name, ok := strings.Cut(l, "filename="); ok {
					filename = trimQuotes(name)
				}
				break
			}
		}
		for _, l := range lines {
			if strings.HasPrefix(asciiLower(l), "content-type:") {
				contentType, _, _ = strings.Cut(strings.TrimSpace(l[len("content-type:"):]), ";")
				break
			}
		}

		bodyStart := strings.Index(part, "\r\n\r\n")
		if bodyStart < 0 {
			bodyStart = strings.Index(part, "\n\n")
		}
		if bodyStart < 0 {
			continue
		}
		body := stripSpace(part[bodyStart:])
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil || len(decoded) <= minAttachment {
			continue
		}
		files = append(files, newFile(decoded, filename, contentType, src, dst,
			append([]uint64(nil), ids...), key, core.SourceEmail))
	}
	return files
}

// mimeBoundary returns the first boundary= parameter in the message.
func mimeBoundary(data string) string {
	for _, line := range splitLines(data) {
		if !strings.Contains(asciiLower(line), "boundary=") {
			continue
		}
		_, b, ok := strings.Cut(line, "boundary=")
		if !ok {
			return ""
		}
		return trimQuotes(b)
	}
	return ""
}

// streamMagicFiles scans the concatenated payloads of a stream for file
// signatures.
func streamMagicFiles(stream []*core.CapturedPacket, key string) []core.ExtractedFile {
	var (
		data     []byte
		ids      []uint64
		src, dst string
	)
	for _, pkt := range stream {
		payload := transportPayload(pkt.Raw)
		if len(payload) == 0 {
			continue
		}
		data = append(data, payload...)
		ids = append(ids, pkt.ID)
		if src == "" {
			src, dst = pkt.Src, pkt.Dst
		}
	}
	if len(data) < 10 {
		return nil
	}

	var files []core.ExtractedFile
	for off := 0; off < len(data)-8; {
		sig, blob := carveAt(data, off)
		if sig == nil || len(blob) < minCarvedSize {
			off++
			continue
		}
		files = append(files, newFile(blob, generateFilename(sig.Ext), sig.MIME, src, dst,
			append([]uint64(nil), ids...), key, core.SourceStream))
		off += len(blob)
	}
	return files
}

// packetMagicFiles scans every frame on its own. A slice covering nearly the
// whole frame is a degenerate match and is skipped.
func packetMagicFiles(packets []core.CapturedPacket) []core.ExtractedFile {
	var files []core.ExtractedFile
	for i := range packets {
		pkt := &packets[i]
		raw := pkt.Raw
		if len(raw) < minPacketScan {
			continue
		}
		for off := 0; off < len(raw)-8; {
			sig, blob := carveAt(raw, off)
			if sig == nil || len(blob) < minCarvedSize || len(blob) >= len(raw)-10 {
				off++
				continue
			}
			files = append(files, newFile(blob, generateFilename(sig.Ext), sig.MIME, pkt.Src, pkt.Dst,
				[]uint64{pkt.ID}, StreamKey(pkt.Src, pkt.Dst), pkt.Protocol))
			off += len(blob)
		}
	}
	return files
}

// base64Files decodes long Base64 runs found anywhere in a frame.
func base64Files(packets []core.CapturedPacket) []core.ExtractedFile {
	var files []core.ExtractedFile
	for i := range packets {
		pkt := &packets[i]
		for _, m := range base64Pattern.FindAll(pkt.Raw, -1) {
			if len(m) < minBase64Match {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(string(m))
			if err != nil || len(decoded) < minCarvedSize {
				continue
			}
			ext, mime := DetectType(decoded)
			files = append(files, newFile(decoded, generateFilename(ext), mime, pkt.Src, pkt.Dst,
				[]uint64{pkt.ID}, StreamKey(pkt.Src, pkt.Dst), core.SourceBase64))
		}
	}
	return files
}

// dnsTunnelFiles joins hex or Base64 data smuggled in query names and TXT
// records across the whole capture.
func dnsTunnelFiles(packets []core.CapturedPacket) []core.ExtractedFile {
	var (
		data     []byte
		ids      []uint64
		src, dst string
	)
	for i := range packets {
		pkt := &packets[i]
		if pkt.Protocol != core.ProtoDNS {
			continue
		}
		layer, ok := pkt.Layer("DNS")
		if !ok {
			continue
		}
		for _, f := range layer.Fields {
			if f.Name != "Query Name" && f.Name != "TXT Data" {
				continue
			}
			cleaned := tunnelAlphabet(f.Value)
			if len(cleaned) <= minTunnelData {
				continue
			}
			if d, err := hex.DecodeString(cleaned); err == nil {
				data = append(data, d...)
			} else if d, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
				data = append(data, d...)
			}
			if len(ids) == 0 || ids[len(ids)-1] != pkt.ID {
				ids = append(ids, pkt.ID)
			}
			if src == "" {
				src, dst = pkt.Src, pkt.Dst
			}
		}
	}
	return tunnelFile(data, "dns_exfil", src, dst, ids, core.SourceDNSTunnel)
}

// icmpTunnelFiles joins the non-zero echo payloads of the whole capture.
func icmpTunnelFiles(packets []core.CapturedPacket) []core.ExtractedFile {
	var (
		data     []byte
		ids      []uint64
		src, dst string
	)
	for i := range packets {
		pkt := &packets[i]
		if pkt.Protocol != core.ProtoICMP || len(pkt.Raw) <= icmpDataOffset {
			continue
		}
		payload := pkt.Raw[icmpDataOffset:]
		if allZero(payload) {
			continue
		}
		data = append(data, payload...)
		ids = append(ids, pkt.ID)
		if src == "" {
			src, dst = pkt.Src, pkt.Dst
		}
	}
	return tunnelFile(data, "icmp_data", src, dst, ids, core.SourceICMPTunnel)
}

func tunnelFile(data []byte, base, src, dst string, ids []uint64, sourceType string) []core.ExtractedFile {
	if len(data) <= minTunnelData {
		return nil
	}
	ext, mime := DetectType(data)
	return []core.ExtractedFile{newFile(data, base+"."+ext, mime, src, dst, ids, "", sourceType)}
}

func containsAny(data []byte, needles [][]byte) bool {
	for _, n := range needles {
		if bytes.Contains(data, n) {
			return true
		}
	}
	return false
}

// splitLines splits on \n and drops a trailing \r from each line.
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSuffix(line, "\r")
}

func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"';`)
}

// asciiLower lowercases ASCII letters only, keeping byte offsets stable.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// tunnelAlphabet keeps ASCII letters, digits, '+' and '/'.
func tunnelAlphabet(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '+' || c == '/' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
