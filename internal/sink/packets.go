package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"firestige.xyz/netcarve/internal/core"
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("netcarve: packet writer closed")

// PacketWriter writes dissected packets as JSON lines. It is safe for
// concurrent use.
type PacketWriter struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	enc     *json.Encoder
	closer  io.Closer
	closed  bool
	written atomic.Uint64
}

// NewPacketWriter wraps w. Close flushes but does not close w.
func NewPacketWriter(w io.Writer) *PacketWriter {
	buf := bufio.NewWriter(w)
	return &PacketWriter{buf: buf, enc: json.NewEncoder(buf)}
}

// CreatePacketFile truncates or creates path and returns a writer that owns
// the file.
func CreatePacketFile(path string) (*PacketWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	pw := NewPacketWriter(f)
	pw.closer = f
	return pw, nil
}

// Write appends one packet.
func (w *PacketWriter) Write(pkt *core.CapturedPacket) error {
	if pkt == nil {
		return fmt.Errorf("nil packet")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.enc.Encode(pkt); err != nil {
		return fmt.Errorf("json encode packet %d: %w", pkt.ID, err)
	}
	w.written.Add(1)
	return nil
}

// Count returns the number of packets written.
func (w *PacketWriter) Count() uint64 {
	return w.written.Load()
}

// Flush pushes buffered lines to the underlying writer.
func (w *PacketWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Close flushes and, for writers from CreatePacketFile, closes the file.
// Calls after the first return nil.
func (w *PacketWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.buf.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	return err
}
