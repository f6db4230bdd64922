package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/filter"
	"firestige.xyz/netcarve/internal/pcapfile"
	"firestige.xyz/netcarve/internal/sink"
)

type readOptions struct {
	filter    string
	protocols []string
	tree      bool
	jsonl     string
	snapLen   int
}

var readOpts readOptions

var readCmd = &cobra.Command{
	Use:   "read FILE",
	Short: "Dissect a pcap or pcapng file",
	Long: `Load a capture file and print one summary row per packet, or the full
protocol tree with --tree.

Examples:
  netcarve read capture.pcapng
  netcarve read capture.pcap --filter "tcp port 80" --tree
  netcarve read capture.pcap --protocol DNS --jsonl dns.jsonl`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		readOpts.snapLen = cfg.Capture.SnapLen
		if err := runRead(os.Stdout, args[0], readOpts); err != nil {
			exitWithError("read failed", err)
		}
	},
}

func init() {
	readCmd.Flags().StringVar(&readOpts.filter, "filter", "", "BPF expression applied to raw frames")
	readCmd.Flags().StringSliceVar(&readOpts.protocols, "protocol", nil, "keep only these protocol labels")
	readCmd.Flags().BoolVar(&readOpts.tree, "tree", false, "print the full protocol tree")
	readCmd.Flags().StringVar(&readOpts.jsonl, "jsonl", "", "also write packets as JSON lines to this path")
}

func runRead(w io.Writer, path string, opts readOptions) error {
	pkts, err := loadPackets(path, opts.filter, opts.protocols, opts.snapLen)
	if err != nil {
		return err
	}

	var jw *sink.PacketWriter
	if opts.jsonl != "" {
		if jw, err = sink.CreatePacketFile(opts.jsonl); err != nil {
			return err
		}
		defer jw.Close()
	}

	for i := range pkts {
		if opts.tree {
			printTree(w, &pkts[i])
		} else {
			printSummary(w, &pkts[i])
		}
		if jw != nil {
			if err := jw.Write(&pkts[i]); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(w, "%d packets\n", len(pkts))

	if jw != nil {
		return jw.Close()
	}
	return nil
}

// loadPackets reads path and applies the optional BPF and protocol filters.
func loadPackets(path, expr string, protocols []string, snapLen int) ([]core.CapturedPacket, error) {
	chain, err := buildFilter(expr, protocols, snapLen)
	if err != nil {
		return nil, err
	}
	pkts, err := pcapfile.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return chain.Apply(pkts), nil
}

func buildFilter(expr string, protocols []string, snapLen int) (filter.Chain, error) {
	var chain filter.Chain
	if expr != "" {
		bpf, err := filter.NewBPF(expr, snapLen)
		if err != nil {
			return nil, err
		}
		chain = append(chain, bpf)
	}
	if len(protocols) > 0 {
		chain = append(chain, filter.Protocol(protocols))
	}
	return chain, nil
}
