// Package extract carves files and exfiltrated payloads out of dissected
// traffic.
//
// Extraction runs independent passes over the packet list: per-stream HTTP,
// FTP, email and magic scans, then capture-wide raw magic, Base64, DNS tunnel
// and ICMP tunnel scans. Results are concatenated, deduplicated on
// (first 100 bytes, size) and numbered file_1, file_2, ... in that order.
package extract

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/log"
	"firestige.xyz/netcarve/internal/metrics"
)

const (
	minCarvedSize     = 20  // Smaller candidates are noise
	minHTMLSize       = 500 // Short HTML bodies are error pages, not files
	fingerprintPrefix = 100
)

// Replaced in tests.
var (
	now        = time.Now
	nameSuffix = func() string { return uuid.NewString()[:8] }
)

// Extract runs every pass over packets and returns the deduplicated files.
func Extract(packets []core.CapturedPacket) []core.ExtractedFile {
	start := now()
	logger := log.GetLogger()

	streams := groupStreams(packets)

	var files []core.ExtractedFile
	collect := func(pass string, found []core.ExtractedFile) {
		if len(found) > 0 && logger.IsDebugEnabled() {
			logger.WithFields(map[string]interface{}{"pass": pass, "files": len(found)}).Debug("Extraction pass found candidates")
		}
		files = append(files, found...)
	}

	for _, key := range sortedKeys(streams) {
		stream := streams[key]
		collect("http", httpFiles(stream, key))
		collect("ftp", ftpFiles(stream, key))
		collect("email", emailFiles(stream, key))
		collect("stream", streamMagicFiles(stream, key))
	}

	collect("packet", packetMagicFiles(packets))
	collect("base64", base64Files(packets))
	collect("dns", dnsTunnelFiles(packets))
	collect("icmp", icmpTunnelFiles(packets))

	files = Deduplicate(files)
	for i := range files {
		files[i].ID = fmt.Sprintf("file_%d", i+1)
		metrics.ExtractedFilesTotal.WithLabelValues(files[i].SourceType).Inc()
	}

	elapsed := now().Sub(start)
	metrics.ExtractDuration.Observe(elapsed.Seconds())
	logger.WithFields(map[string]interface{}{
		"packets": len(packets),
		"streams": len(streams),
		"files":   len(files),
		"elapsed": elapsed,
	}).Info("Extraction finished")

	return files
}

// groupStreams buckets packets by symmetric stream key, ordered by id.
func groupStreams(packets []core.CapturedPacket) map[string][]*core.CapturedPacket {
	streams := make(map[string][]*core.CapturedPacket)
	for i := range packets {
		pkt := &packets[i]
		key := StreamKey(pkt.Src, pkt.Dst)
		streams[key] = append(streams[key], pkt)
	}
	for _, s := range streams {
		sort.SliceStable(s, func(i, j int) bool { return s[i].ID < s[j].ID })
	}
	return streams
}

// Deduplicate keeps the first file for every (first 100 bytes, size) pair.
func Deduplicate(files []core.ExtractedFile) []core.ExtractedFile {
	seen := make(map[string]struct{}, len(files))
	out := make([]core.ExtractedFile, 0, len(files))
	for _, f := range files {
		prefix := f.Data[:min(len(f.Data), fingerprintPrefix)]
		key := fmt.Sprintf("%x_%d", prefix, f.Size)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// FilePackets returns the packets a file was carved from.
func FilePackets(file core.ExtractedFile, packets []core.CapturedPacket) []core.CapturedPacket {
	ids := make(map[uint64]struct{}, len(file.PacketIDs))
	for _, id := range file.PacketIDs {
		ids[id] = struct{}{}
	}
	var out []core.CapturedPacket
	for _, p := range packets {
		if _, ok := ids[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// StreamPackets returns every packet of the stream a file was carved from.
func StreamPackets(file core.ExtractedFile, packets []core.CapturedPacket) []core.CapturedPacket {
	var out []core.CapturedPacket
	for _, p := range packets {
		if StreamKey(p.Src, p.Dst) == file.StreamKey {
			out = append(out, p)
		}
	}
	return out
}

// candidate is a reassembled body waiting to become an ExtractedFile.
type candidate struct {
	data        []byte
	contentType string
	filename    string
	src, dst    string
	packetIDs   []uint64
	streamKey   string
	sourceType  string
}

// build applies the size and content filters shared by the HTTP and FTP
// passes. The declared content type is kept unless it is empty or generic.
func (c *candidate) build() (core.ExtractedFile, bool) {
	if len(c.data) < minCarvedSize {
		return core.ExtractedFile{}, false
	}

	ext, mime := DetectType(c.data)
	if c.contentType != "" && !strings.Contains(c.contentType, "octet-stream") {
		mime = c.contentType
	}
	if strings.Contains(mime, "text/html") && len(c.data) < minHTMLSize {
		return core.ExtractedFile{}, false
	}

	name := c.filename
	if name == "" {
		name = generateFilename(ext)
	}

	return core.ExtractedFile{
		Filename:    name,
		ContentType: mime,
		Size:        len(c.data),
		Src:         c.src,
		Dst:         c.dst,
		Data:        append([]byte(nil), c.data...),
		PacketIDs:   append([]uint64(nil), c.packetIDs...),
		StreamKey:   c.streamKey,
		SourceType:  c.sourceType,
	}, true
}

func newFile(data []byte, filename, mime, src, dst string, ids []uint64, streamKey, sourceType string) core.ExtractedFile {
	return core.ExtractedFile{
		Filename:    filename,
		ContentType: mime,
		Size:        len(data),
		Src:         src,
		Dst:         dst,
		Data:        append([]byte(nil), data...),
		PacketIDs:   ids,
		StreamKey:   streamKey,
		SourceType:  sourceType,
	}
}

func generateFilename(ext string) string {
	return fmt.Sprintf("file_%d_%s.%s", now().UnixMilli(), nameSuffix(), ext)
}
