// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/netcarve/internal/config"
	"firestige.xyz/netcarve/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string

	// Loaded by PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netcarve",
	Short: "netcarve - packet dissector and forensic file carver",
	Long: `netcarve captures or loads Ethernet traffic, dissects every frame into a
Wireshark-style protocol tree and carves transferred files out of it.

Features:
  - Live capture from any libpcap interface with optional BPF filter
  - pcap / pcapng read, write and conversion
  - L2-L4 dissection with HTTP, DNS and port-based application labels
  - File carving from HTTP, FTP, email, raw streams, Base64, DNS and ICMP tunnels
  - Live websocket packet feed and Prometheus metrics`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (trace/debug/info/warn/error)")

	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(extractCmd)
}

// setup loads configuration and initializes logging.
func setup() error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
		if err := loaded.ValidateAndApplyDefaults(); err != nil {
			return err
		}
	}
	if err := log.Init(loaded.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	cfg = loaded
	return nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
