package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"firestige.xyz/netcarve/internal/core"
)

// printSummary writes one Wireshark-style list row.
func printSummary(w io.Writer, pkt *core.CapturedPacket) {
	ts := time.UnixMilli(pkt.Timestamp).Format("15:04:05.000")
	fmt.Fprintf(w, "%6d %s %-22s %-22s %-8s %5d %s\n",
		pkt.ID, ts, pkt.Src, pkt.Dst, pkt.Protocol, pkt.Length, pkt.Info)
}

// printTree writes the full protocol tree, children indented under parents.
func printTree(w io.Writer, pkt *core.CapturedPacket) {
	printSummary(w, pkt)
	for _, layer := range pkt.Layers {
		fmt.Fprintf(w, "  %s\n", layer.Display)
		printFields(w, layer.Fields, 2)
	}
	fmt.Fprintln(w)
}

func printFields(w io.Writer, fields []core.ProtocolField, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		fmt.Fprintf(w, "%s%s: %s\n", indent, f.Name, f.Value)
		if len(f.Children) > 0 {
			printFields(w, f.Children, depth+1)
		}
	}
}
