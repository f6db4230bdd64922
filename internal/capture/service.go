package capture

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/netcarve/internal/config"
	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/core/decoder"
	"firestige.xyz/netcarve/internal/log"
	"firestige.xyz/netcarve/internal/metrics"
)

// Source is a link-layer channel delivering raw frames.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	Close()
}

// Opener opens a link-layer channel on an interface.
type Opener func(iface string, cfg config.CaptureConfig) (Source, error)

// Option configures a Service.
type Option func(*Service)

// WithOpener replaces the libpcap opener.
func WithOpener(o Opener) Option {
	return func(s *Service) { s.open = o }
}

// WithInterfaceLookup replaces the host interface existence check.
func WithInterfaceLookup(fn func(name string) bool) Option {
	return func(s *Service) { s.exists = fn }
}

// session is one capture run. Its stop channel is closed exactly once by
// StopCapture.
type session struct {
	iface string
	stop  chan struct{}
}

// Service runs at most one live capture at a time.
type Service struct {
	cfg    config.CaptureConfig
	open   Opener
	exists func(name string) bool

	mu      sync.Mutex
	running atomic.Bool
	current *session
}

// NewService creates an idle capture service.
func NewService(cfg config.CaptureConfig, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		open:   openLive,
		exists: hostHasInterface,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// openLive opens a libpcap handle and installs the kernel BPF filter.
func openLive(iface string, cfg config.CaptureConfig) (Source, error) {
	handle, err := pcap.OpenLive(iface, int32(cfg.SnapLen), cfg.Promiscuous, cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("open live capture on %s: %w", iface, err)
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", cfg.BPFFilter, err)
		}
	}
	return handle, nil
}

// StartCapture starts capturing on iface and returns the channel dissected
// packets are delivered on. The channel is closed when the capture ends,
// including when the link-layer channel cannot be opened.
func (s *Service) StartCapture(iface string) (<-chan core.CapturedPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil, core.ErrAlreadyRunning
	}
	if !s.exists(iface) {
		return nil, fmt.Errorf("%w: interface %s", core.ErrNotFound, iface)
	}

	sess := &session{iface: iface, stop: make(chan struct{})}
	out := make(chan core.CapturedPacket, s.cfg.QueueSize)
	s.current = sess
	s.running.Store(true)
	metrics.CaptureRunning.Set(1)

	go s.run(sess, out)

	log.GetLogger().WithField("interface", iface).Info("Capture started")
	return out, nil
}

// StopCapture asks the running capture to end. The loop notices on its next
// iteration, so one more frame may still be delivered.
func (s *Service) StopCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return core.ErrNotRunning
	}
	close(s.current.stop)
	log.GetLogger().WithField("interface", s.current.iface).Info("Capture stop requested")
	s.current = nil
	s.running.Store(false)
	metrics.CaptureRunning.Set(0)
	return nil
}

// IsRunning reports whether a capture is active.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// finish resets the state when sess ends on its own. A session that was
// already stopped, and possibly replaced, leaves the state alone.
func (s *Service) finish(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess {
		return
	}
	s.current = nil
	s.running.Store(false)
	metrics.CaptureRunning.Set(0)
}

func (s *Service) run(sess *session, out chan<- core.CapturedPacket) {
	// One OS thread per capture.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(out)
	defer s.finish(sess)

	logger := log.GetLogger().WithField("interface", sess.iface)

	src, err := s.open(sess.iface, s.cfg)
	if err != nil {
		metrics.CaptureErrorsTotal.WithLabelValues(sess.iface, "open").Inc()
		logger.WithError(err).Error("Failed to open capture channel. Check that libpcap is installed and that the process runs as root or has CAP_NET_RAW")
		return
	}
	defer src.Close()

	var id uint64
	for {
		select {
		case <-sess.stop:
			logger.WithField("packets", id).Info("Capture stopped")
			return
		default:
		}

		data, _, err := src.ReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			if errors.Is(err, io.EOF) {
				logger.WithField("packets", id).Info("Capture source exhausted")
				return
			}
			metrics.CaptureErrorsTotal.WithLabelValues(sess.iface, "read").Inc()
			logger.WithError(err).Warn("Packet read error")
			continue
		}

		id++
		pkt, err := decoder.Decode(id, data, sess.iface)
		if err != nil {
			metrics.CaptureErrorsTotal.WithLabelValues(sess.iface, "decode").Inc()
			logger.WithField("id", id).WithError(err).Debug("Dropping undecodable frame")
			continue
		}

		select {
		case out <- *pkt:
			metrics.CapturePacketsTotal.WithLabelValues(sess.iface).Inc()
			metrics.CaptureQueueDepth.Set(float64(len(out)))
		case <-sess.stop:
			logger.WithField("packets", id).Info("Capture stopped")
			return
		}
	}
}
