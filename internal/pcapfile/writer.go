package pcapfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/log"
	"firestige.xyz/netcarve/internal/metrics"
)

const defaultSnapLen = 65535

// snapLenFor returns the header snaplen for pkts. Readers reject records
// longer than the declared snaplen, so jumbo and GRO frames raise it.
func snapLenFor(pkts []core.CapturedPacket) uint32 {
	snap := defaultSnapLen
	for i := range pkts {
		snap = max(snap, len(pkts[i].Raw))
	}
	return uint32(snap)
}

type packetWriter interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

// WriteFile writes packets to path in the given format.
func WriteFile(path string, format Format, pkts []core.CapturedPacket) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close capture file %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := Write(bw, format, pkts); err != nil {
		return fmt.Errorf("failed to write capture file %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush capture file %s: %w", path, err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"path":   path,
		"format": format.String(),
	}).Infof("Wrote %d packets", len(pkts))
	return nil
}

// Write encodes packets with an Ethernet link type. Timestamps are converted
// from milliseconds to the container's native resolution (pcap: µs, pcapng: ns).
func Write(w io.Writer, format Format, pkts []core.CapturedPacket) error {
	var (
		dst   packetWriter
		flush func() error
		snap  = snapLenFor(pkts)
	)
	switch format {
	case FormatPcap:
		pw := pcapgo.NewWriter(w)
		if err := pw.WriteFileHeader(snap, layers.LinkTypeEthernet); err != nil {
			return fmt.Errorf("failed to write pcap header: %w", err)
		}
		dst = pw
	case FormatPcapNG:
		nw, err := pcapgo.NewNgWriterInterface(w, pcapgo.NgInterface{
			Name:                "netcarve",
			LinkType:            layers.LinkTypeEthernet,
			SnapLength:          snap,
			TimestampResolution: 9,
		}, pcapgo.DefaultNgWriterOptions)
		if err != nil {
			return fmt.Errorf("failed to write pcapng header: %w", err)
		}
		dst, flush = nw, nw.Flush
	default:
		return fmt.Errorf("unsupported capture format %d", format)
	}

	for i := range pkts {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.UnixMilli(pkts[i].Timestamp),
			CaptureLength: len(pkts[i].Raw),
			Length:        len(pkts[i].Raw),
		}
		if err := dst.WritePacket(ci, pkts[i].Raw); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", pkts[i].ID, err)
		}
	}
	if flush != nil {
		if err := flush(); err != nil {
			return err
		}
	}

	metrics.FilePacketsTotal.WithLabelValues(format.String(), "write").Add(float64(len(pkts)))
	return nil
}
