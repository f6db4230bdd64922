// Package capture enumerates host interfaces and runs live packet capture.
package capture

import (
	"net"

	"github.com/google/gopacket/pcap"

	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/log"
)

// Replaced in tests so enumeration does not depend on the host.
var (
	netInterfaces = net.Interfaces
	findAllDevs   = pcap.FindAllDevs
)

// hostInterface is the subset of net.Interface the enumerator looks at.
type hostInterface struct {
	Name  string
	Flags net.Flags
	MAC   net.HardwareAddr
	Addrs []net.Addr
}

// ListInterfaces returns the host interfaces usable for capture. Loopback
// devices are skipped, as are devices with neither an address nor a MAC.
func ListInterfaces() ([]core.InterfaceInfo, error) {
	ifaces, err := netInterfaces()
	if err != nil {
		return nil, err
	}

	hosts := make([]hostInterface, 0, len(ifaces))
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			log.GetLogger().WithField("interface", ifi.Name).WithError(err).Debug("Failed to read interface addresses")
		}
		hosts = append(hosts, hostInterface{
			Name:  ifi.Name,
			Flags: ifi.Flags,
			MAC:   ifi.HardwareAddr,
			Addrs: addrs,
		})
	}

	out := filterInterfaces(hosts, pcapDescriptions())
	if len(out) == 0 {
		log.GetLogger().Warn("No capture interfaces found. Make sure libpcap (Npcap on Windows) is installed and the process is allowed to capture")
	}
	return out, nil
}

// pcapDescriptions maps device names to libpcap's human readable
// descriptions. Failure only costs the descriptions.
func pcapDescriptions() map[string]string {
	devs, err := findAllDevs()
	if err != nil {
		log.GetLogger().WithError(err).Debug("pcap device lookup failed, interface descriptions unavailable")
		return nil
	}
	descs := make(map[string]string, len(devs))
	for _, d := range devs {
		if d.Description != "" {
			descs[d.Name] = d.Description
		}
	}
	return descs
}

func filterInterfaces(hosts []hostInterface, descs map[string]string) []core.InterfaceInfo {
	out := make([]core.InterfaceInfo, 0, len(hosts))
	for _, h := range hosts {
		if h.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(h.Addrs) == 0 && len(h.MAC) == 0 {
			continue
		}

		info := core.InterfaceInfo{
			Name:        h.Name,
			Description: descs[h.Name],
		}
		if len(h.MAC) > 0 {
			info.MAC = h.MAC.String()
		}
		info.IPv4 = firstIPv4(h.Addrs)
		out = append(out, info)
	}
	return out
}

func firstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

// hostHasInterface reports whether name is any host interface, loopback
// included.
func hostHasInterface(name string) bool {
	ifaces, err := netInterfaces()
	if err != nil {
		return false
	}
	for _, ifi := range ifaces {
		if ifi.Name == name {
			return true
		}
	}
	return false
}
