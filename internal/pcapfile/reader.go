package pcapfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/core/decoder"
	"firestige.xyz/netcarve/internal/log"
	"firestige.xyz/netcarve/internal/metrics"
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// ReadFile loads and dissects every packet in a pcap or pcapng file.
func ReadFile(path string) ([]core.CapturedPacket, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	defer f.Close()

	pkts, format, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"path":   path,
		"format": format.String(),
	}).Infof("Read %d packets", len(pkts))
	return pkts, nil
}

// Read detects the container format and dissects records in order, with ids
// starting at 1. Each packet's timestamp is the record's capture time in
// milliseconds. A malformed record ends the read and the packets before it
// are returned without error.
func Read(r io.Reader) ([]core.CapturedPacket, Format, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read magic: %w", err)
	}
	format, err := DetectFormat(magic)
	if err != nil {
		return nil, 0, err
	}

	var src packetReader
	switch format {
	case FormatPcap:
		src, err = pcapgo.NewReader(br)
	case FormatPcapNG:
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	if err != nil {
		return nil, format, fmt.Errorf("failed to create %s reader: %w", format, err)
	}

	label := format.String()
	var (
		pkts []core.CapturedPacket
		id   uint64
	)
	for {
		data, ci, err := src.ReadPacketData()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.GetLogger().WithError(err).WithField("format", label).
					Warnf("Error reading packet %d, keeping %d packets read so far", id+1, len(pkts))
			}
			break
		}

		id++
		pkt, err := decoder.Decode(id, data, label)
		if err != nil {
			log.GetLogger().WithError(err).Debugf("Skipping packet %d", id)
			continue
		}
		pkt.Timestamp = ci.Timestamp.UnixMilli()
		pkts = append(pkts, *pkt)
	}

	metrics.FilePacketsTotal.WithLabelValues(label, "read").Add(float64(len(pkts)))
	return pkts, format, nil
}
