package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/netcarve/internal/config"
	"firestige.xyz/netcarve/internal/extract"
	"firestige.xyz/netcarve/internal/sink"
)

type extractOptions struct {
	outputDir string
	filter    string
	dryRun    bool
}

var extractOpts extractOptions

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Carve transferred files out of a capture",
	Long: `Run every carving pass over a capture file and save the results with a
YAML manifest describing where each file came from.

Examples:
  netcarve extract capture.pcap
  netcarve extract capture.pcapng -o ./loot --filter "not port 53"
  netcarve extract capture.pcap --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ec := cfg.Extract
		if extractOpts.outputDir != "" {
			ec.OutputDir = extractOpts.outputDir
		}
		if err := runExtract(os.Stdout, args[0], ec, cfg.Capture.SnapLen, extractOpts); err != nil {
			exitWithError("extract failed", err)
		}
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOpts.outputDir, "output", "o", "", "output directory (default from config)")
	extractCmd.Flags().StringVar(&extractOpts.filter, "filter", "", "BPF expression applied before carving")
	extractCmd.Flags().BoolVar(&extractOpts.dryRun, "dry-run", false, "list carved files without writing them")
}

func runExtract(w io.Writer, path string, ec config.ExtractConfig, snapLen int, opts extractOptions) error {
	pkts, err := loadPackets(path, opts.filter, nil, snapLen)
	if err != nil {
		return err
	}

	files := extract.Extract(pkts)
	for _, f := range files {
		fmt.Fprintf(w, "%-8s %-8s %9d  %-40s %s\n", f.ID, f.SourceType, f.Size, f.Filename, f.ContentType)
	}

	if opts.dryRun || len(files) == 0 {
		fmt.Fprintf(w, "%d files carved from %d packets\n", len(files), len(pkts))
		return nil
	}

	m, err := sink.NewDirectory(ec, path).SaveAll(files)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d files carved from %d packets, saved to %s (session %s)\n",
		len(files), len(pkts), ec.OutputDir, m.Session)
	return nil
}
