package host

import "net"

// ChooseInterfaces selects the local IPv4 addresses a device host
// advertises and serves from (spec.md §4.8: "default: first up
// non-loopback IPv4; fallback loopback"), grounded on the teacher's
// getActiveInterfaces/getLocalIP (server/dlna/dlna.go), generalized to
// return every qualifying address rather than just the first (spec.md's
// per-interface unicast-socket design needs the full set).
func ChooseInterfaces() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var found []net.IP
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if v4 := ipNet.IP.To4(); v4 != nil && !v4.IsLoopback() {
				found = append(found, v4)
			}
		}
	}
	if len(found) > 0 {
		return found, nil
	}
	return []net.IP{net.IPv4(127, 0, 0, 1)}, nil
}
