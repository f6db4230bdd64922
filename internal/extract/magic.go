package extract

import (
	"bytes"
	"encoding/binary"
)

const (
	maxCarveSize     = 50 * 1024 * 1024 // Search window cap for end markers
	defaultChunkSize = 512 * 1024       // Slice length when no end marker is found
)

// Signature is one row of the file magic table.
type Signature struct {
	Magic        []byte
	Ext          string
	MIME         string
	HasEndMarker bool
}

// signatures is scanned in order; the first matching row wins. Several rows
// share a prefix (RIFF, PK\x03\x04) so the order is part of the behaviour.
var signatures = []Signature{
	// Images
	{[]byte{0xFF, 0xD8, 0xFF}, "jpg", "image/jpeg", true},
	{[]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "png", "image/png", true},
	{[]byte("GIF87a"), "gif", "image/gif", true},
	{[]byte("GIF89a"), "gif", "image/gif", true},
	{[]byte("RIFF"), "webp", "image/webp", false},
	{[]byte{0x00, 0x00, 0x01, 0x00}, "ico", "image/x-icon", false},
	{[]byte("BM"), "bmp", "image/bmp", false},
	{[]byte{0x49, 0x49, 0x2A, 0x00}, "tiff", "image/tiff", false},
	{[]byte{0x4D, 0x4D, 0x00, 0x2A}, "tiff", "image/tiff", false},

	// Documents
	{[]byte("%PDF"), "pdf", "application/pdf", true},
	{[]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "doc", "application/msword", false},
	{[]byte("PK\x03\x04\x14\x00\x06\x00"), "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", false},
	{[]byte(`{\rtf`), "rtf", "application/rtf", false},

	// Archives
	{[]byte{0x50, 0x4B, 0x03, 0x04}, "zip", "application/zip", true},
	{[]byte{0x50, 0x4B, 0x05, 0x06}, "zip", "application/zip", true},
	{[]byte{0x1F, 0x8B}, "gz", "application/gzip", false},
	{[]byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07}, "rar", "application/x-rar-compressed", false},
	{[]byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, "7z", "application/x-7z-compressed", false},
	{[]byte("ustar"), "tar", "application/x-tar", false},
	{[]byte("BZh"), "bz2", "application/x-bzip2", false},
	{[]byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}, "xz", "application/x-xz", false},

	// Video
	{[]byte{0x00, 0x00, 0x00, 0x1C, 'f', 't', 'y', 'p'}, "mp4", "video/mp4", false},
	{[]byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p'}, "mp4", "video/mp4", false},
	{[]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}, "mp4", "video/mp4", false},
	{[]byte{0x1A, 0x45, 0xDF, 0xA3}, "webm", "video/webm", false},
	{[]byte("FLV"), "flv", "video/x-flv", false},
	{[]byte{0x00, 0x00, 0x00, 0x14, 'f', 't', 'y', 'p'}, "mov", "video/quicktime", false},
	{[]byte{0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11}, "wmv", "video/x-ms-wmv", false},
	{[]byte("RIFF"), "avi", "video/x-msvideo", false},

	// Audio
	{[]byte("ID3"), "mp3", "audio/mpeg", false},
	{[]byte{0xFF, 0xFB}, "mp3", "audio/mpeg", false},
	{[]byte{0xFF, 0xFA}, "mp3", "audio/mpeg", false},
	{[]byte{0xFF, 0xF3}, "mp3", "audio/mpeg", false},
	{[]byte("OggS"), "ogg", "audio/ogg", false},
	{[]byte("fLaC"), "flac", "audio/flac", false},
	{[]byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'M', '4', 'A'}, "m4a", "audio/mp4", false},

	// Executables and scripts
	{[]byte("MZ"), "exe", "application/x-msdownload", false},
	{[]byte{0x7F, 'E', 'L', 'F'}, "elf", "application/x-executable", false},
	{[]byte{0xCE, 0xFA, 0xED, 0xFE}, "macho", "application/x-mach-binary", false},
	{[]byte{0xCF, 0xFA, 0xED, 0xFE}, "macho64", "application/x-mach-binary", false},
	{[]byte("#!"), "sh", "text/x-shellscript", false},
	{[]byte("<?php"), "php", "text/x-php", false},
	{[]byte("<?xml"), "xml", "application/xml", false},

	// Fonts
	{[]byte{0x00, 0x01, 0x00, 0x00}, "ttf", "font/ttf", false},
	{[]byte("wOFF"), "woff", "font/woff", false},
	{[]byte("wOF2"), "woff2", "font/woff2", false},

	{[]byte("SQLite format 3"), "sqlite", "application/x-sqlite3", false},

	// Keys and certificates
	{[]byte("-----BEGIN"), "pem", "application/x-pem-file", true},
	{[]byte("ssh-rsa "), "pub", "text/plain", false},
	{[]byte("ssh-ed25519 "), "pub", "text/plain", false},

	{[]byte{0xCA, 0xFE, 0xBA, 0xBE}, "class", "application/java-vm", false},
	{[]byte{0x03, 0xF3, 0x0D, 0x0A}, "pyc", "application/x-python-code", false},

	// Nested captures
	{[]byte{0xD4, 0xC3, 0xB2, 0xA1}, "pcap", "application/vnd.tcpdump.pcap", false},
	{[]byte{0xA1, 0xB2, 0xC3, 0xD4}, "pcap", "application/vnd.tcpdump.pcap", false},
	{[]byte{0x0A, 0x0D, 0x0D, 0x0A}, "pcapng", "application/x-pcapng", false},

	// Disk images
	{[]byte("QEMU"), "qcow", "application/x-qemu-disk", false},
	{[]byte("conectix"), "vhd", "application/x-vhd", false},
}

// Signatures returns a copy of the magic table in match order.
func Signatures() []Signature {
	out := make([]Signature, len(signatures))
	copy(out, signatures)
	return out
}

// DetectType sniffs data's leading bytes. Unknown data is reported as
// bin / application/octet-stream.
func DetectType(data []byte) (ext, mime string) {
	for i := range signatures {
		if bytes.HasPrefix(data, signatures[i].Magic) {
			return signatures[i].Ext, signatures[i].MIME
		}
	}
	return "bin", "application/octet-stream"
}

// leadBytes marks the first byte of every signature.
var leadBytes = func() (set [256]bool) {
	for _, sig := range signatures {
		set[sig.Magic[0]] = true
	}
	return set
}()

// carveAt tries every signature at offset and returns the first one that
// yields a non-empty slice.
func carveAt(data []byte, offset int) (*Signature, []byte) {
	if !leadBytes[data[offset]] {
		return nil, nil
	}
	for i := range signatures {
		sig := &signatures[i]
		if !bytes.HasPrefix(data[offset:], sig.Magic) {
			continue
		}
		if end := estimateEnd(data, offset, sig); end > offset {
			return sig, data[offset:end]
		}
	}
	return nil, nil
}

// estimateEnd returns the exclusive end of a file starting at start.
func estimateEnd(data []byte, start int, sig *Signature) int {
	maxSize := min(len(data)-start, maxCarveSize)
	searchEnd := start + maxSize
	from := start + len(sig.Magic)

	if sig.HasEndMarker {
		var end int
		switch sig.Ext {
		case "jpg":
			end = forward(data, from, searchEnd, []byte{0xFF, 0xD9})
		case "png":
			// IEND chunk type followed by its CRC, both inside the window.
			if i := indexFrom(data, from, searchEnd-4, []byte("IEND")); i >= 0 {
				end = i + 8
			}
		case "gif":
			if i := indexFrom(data, from, searchEnd, []byte{0x3B}); i >= 0 {
				end = i + 1
			}
		case "zip":
			// The EOCD record is 22 bytes without a comment.
			if i := lastIndexFrom(data, from, searchEnd-18, []byte{0x50, 0x4B, 0x05, 0x06}); i >= 0 {
				end = min(i+22, len(data))
			}
		case "pdf":
			end = backward(data, from, searchEnd, []byte("%%EOF"))
		case "pem":
			end = pemEnd(data, from, searchEnd)
		}
		if end > 0 {
			return end
		}
	}

	if sig.Ext == "bmp" && len(data) >= start+6 {
		size := int(binary.LittleEndian.Uint32(data[start+2 : start+6]))
		if size > 0 && size < maxSize {
			return min(start+size, len(data))
		}
	}

	return min(start+min(maxSize, defaultChunkSize), len(data))
}

// indexFrom finds sep inside data[from:to].
func indexFrom(data []byte, from, to int, sep []byte) int {
	if from >= to {
		return -1
	}
	i := bytes.Index(data[from:to], sep)
	if i < 0 {
		return -1
	}
	return from + i
}

func lastIndexFrom(data []byte, from, to int, sep []byte) int {
	if from >= to {
		return -1
	}
	i := bytes.LastIndex(data[from:to], sep)
	if i < 0 {
		return -1
	}
	return from + i
}

// forward returns the end of the first marker in data[from:to], or 0.
func forward(data []byte, from, to int, marker []byte) int {
	if i := indexFrom(data, from, to, marker); i >= 0 {
		return i + len(marker)
	}
	return 0
}

// backward returns the end of the last marker in data[from:to], or 0.
func backward(data []byte, from, to int, marker []byte) int {
	if i := lastIndexFrom(data, from, to, marker); i >= 0 {
		return i + len(marker)
	}
	return 0
}

// pemEnd finds "-----END " and then the closing dashes of that line.
func pemEnd(data []byte, from, to int) int {
	endMarker := []byte("-----END ")
	dashes := []byte("-----")
	for from < to {
		i := indexFrom(data, from, to, endMarker)
		if i < 0 {
			return 0
		}
		tail := i + len(endMarker)
		if j := indexFrom(data, tail, min(to, i+50+len(dashes)-1), dashes); j >= 0 && j < i+50 {
			return j + len(dashes)
		}
		from = i + 1
	}
	return 0
}
