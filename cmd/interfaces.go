package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/netcarve/internal/capture"
	"firestige.xyz/netcarve/internal/core"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capture-capable network interfaces",
	Long: `List non-loopback interfaces that have an address or a hardware address.

Descriptions come from libpcap when it is available.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInterfaces(os.Stdout, capture.ListInterfaces); err != nil {
			exitWithError("failed to list interfaces", err)
		}
	},
}

func runInterfaces(w io.Writer, list func() ([]core.InterfaceInfo, error)) error {
	ifaces, err := list()
	if err != nil {
		return err
	}
	if len(ifaces) == 0 {
		fmt.Fprintln(w, "No capture-capable interfaces found")
		return nil
	}

	fmt.Fprintf(w, "%-16s %-17s %-15s %s\n", "NAME", "MAC", "IPV4", "DESCRIPTION")
	for _, i := range ifaces {
		fmt.Fprintf(w, "%-16s %-17s %-15s %s\n", i.Name, orDash(i.MAC), orDash(i.IPv4), i.Description)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
