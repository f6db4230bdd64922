package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/netcarve/internal/capture"
	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/feed"
	"firestige.xyz/netcarve/internal/log"
	"firestige.xyz/netcarve/internal/metrics"
	"firestige.xyz/netcarve/internal/pcapfile"
	"firestige.xyz/netcarve/internal/sink"
)

type captureOptions struct {
	iface  string
	count  int
	write  string
	filter string
	feed   bool
	jsonl  string
	tree   bool
}

var captureOpts captureOptions

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture and dissect live traffic",
	Long: `Capture frames from an interface and print one summary row per packet
until interrupted (SIGINT/SIGTERM) or --count packets have been seen.

Examples:
  netcarve capture -i eth0
  netcarve capture -i eth0 --filter "udp port 53" --count 100 --write dns.pcap
  netcarve capture -i eth0 --feed              # also push packets to websocket clients`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ccfg := cfg.Capture
		if captureOpts.filter != "" {
			ccfg.BPFFilter = captureOpts.filter
		}

		if cfg.Metrics.Enabled {
			ms := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
			if err := ms.Start(ctx); err != nil {
				exitWithError("failed to start metrics server", err)
			}
			defer ms.Stop(context.Background())
		}

		var fs *feed.Server
		if captureOpts.feed || cfg.Feed.Enabled {
			fs = feed.NewServer(cfg.Feed)
			if err := fs.Start(ctx); err != nil {
				exitWithError("failed to start feed server", err)
			}
			defer fs.Stop(context.Background())
		}

		svc := capture.NewService(ccfg)
		if err := runCapture(ctx, os.Stdout, svc, fs, captureOpts); err != nil {
			exitWithError("capture failed", err)
		}
	},
}

func init() {
	captureCmd.Flags().StringVarP(&captureOpts.iface, "interface", "i", "", "interface to capture on (required)")
	captureCmd.Flags().IntVar(&captureOpts.count, "count", 0, "stop after this many packets (0 = unlimited)")
	captureCmd.Flags().StringVar(&captureOpts.write, "write", "", "save captured packets on exit (.pcapng selects pcapng)")
	captureCmd.Flags().StringVar(&captureOpts.filter, "filter", "", "kernel BPF capture filter")
	captureCmd.Flags().BoolVar(&captureOpts.feed, "feed", false, "serve packets to websocket clients")
	captureCmd.Flags().StringVar(&captureOpts.jsonl, "jsonl", "", "also write packets as JSON lines to this path")
	captureCmd.Flags().BoolVar(&captureOpts.tree, "tree", false, "print the full protocol tree")
	captureCmd.MarkFlagRequired("interface")
}

// captureService is the part of capture.Service the command drives.
type captureService interface {
	StartCapture(iface string) (<-chan core.CapturedPacket, error)
	StopCapture() error
}

func runCapture(ctx context.Context, w io.Writer, svc captureService, fs *feed.Server, opts captureOptions) error {
	ch, err := svc.StartCapture(opts.iface)
	if err != nil {
		return err
	}

	if fs != nil {
		ch = fs.Forward(ch)
		fs.Hub().Notify(feed.TypeCaptureStarted, feed.CaptureStatus{Interface: opts.iface})
	}

	var jw *sink.PacketWriter
	if opts.jsonl != "" {
		if jw, err = sink.CreatePacketFile(opts.jsonl); err != nil {
			svc.StopCapture()
			return err
		}
		defer jw.Close()
	}

	stop := func() {
		if err := svc.StopCapture(); err != nil && !errors.Is(err, core.ErrNotRunning) {
			log.GetLogger().WithError(err).Warn("failed to stop capture")
		}
	}

	var (
		kept []core.CapturedPacket
		seen uint64
		done = ctx.Done()
	)
loop:
	for {
		select {
		case <-done:
			done = nil
			stop()
		case pkt, ok := <-ch:
			if !ok {
				break loop
			}
			if opts.count > 0 && seen >= uint64(opts.count) {
				continue
			}
			seen++

			if opts.tree {
				printTree(w, &pkt)
			} else {
				printSummary(w, &pkt)
			}
			if jw != nil {
				if err := jw.Write(&pkt); err != nil {
					log.GetLogger().WithError(err).Warn("failed to write packet")
				}
			}
			if opts.write != "" {
				kept = append(kept, pkt)
			}
			if opts.count > 0 && seen == uint64(opts.count) {
				stop()
			}
		}
	}

	if fs != nil {
		fs.Hub().Notify(feed.TypeCaptureStopped, feed.CaptureStatus{Interface: opts.iface, Packets: seen})
	}
	fmt.Fprintf(w, "%d packets captured on %s\n", seen, opts.iface)

	switch {
	case opts.write == "":
	case len(kept) == 0:
		fmt.Fprintln(w, "Nothing to save")
	default:
		if err := pcapfile.WriteFile(opts.write, pcapfile.FormatForPath(opts.write), kept); err != nil {
			return err
		}
		fmt.Fprintf(w, "Saved to %s\n", opts.write)
	}

	if jw != nil {
		return jw.Close()
	}
	return nil
}
