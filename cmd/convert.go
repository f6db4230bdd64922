package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/netcarve/internal/pcapfile"
)

var convertFormat string

var convertCmd = &cobra.Command{
	Use:   "convert IN OUT",
	Short: "Rewrite a capture file as pcap or pcapng",
	Long: `Read IN and write its packets to OUT. The output container follows the
OUT extension (.pcapng writes pcapng, anything else pcap) unless --format is set.

Examples:
  netcarve convert capture.pcapng capture.pcap
  netcarve convert old.cap new.out --format pcapng`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConvert(os.Stdout, args[0], args[1], convertFormat); err != nil {
			exitWithError("convert failed", err)
		}
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertFormat, "format", "", "output format (pcap/pcapng)")
}

func runConvert(w io.Writer, in, out, format string) error {
	f := pcapfile.FormatForPath(out)
	if format != "" {
		var err error
		if f, err = pcapfile.ParseFormat(format); err != nil {
			return err
		}
	}

	pkts, err := pcapfile.ReadFile(in)
	if err != nil {
		return err
	}
	if err := pcapfile.WriteFile(out, f, pkts); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote %d packets to %s (%s)\n", len(pkts), out, f)
	return nil
}
