package ssdp

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/upnpda/upnpda/internal/log"
)

const (
	multicastIP   = "239.255.255.250"
	multicastPort = 1900
	unicastLow    = 49152
	unicastHigh   = 65535
)

// Socket bundles the multicast listener and the set of per-interface
// unicast sockets spec.md §4.3 requires: one UDP socket bound to
// 0.0.0.0:1900 joined to the multicast group, plus one unicast socket per
// chosen local IPv4 address, used both to answer searches on a
// predictable source port and to send searches/advertisements.
type Socket struct {
	multicast *net.UDPConn
	unicasts  map[string]*net.UDPConn // local IP -> bound unicast conn
}

// Open binds the multicast socket and one unicast socket per address in
// addrs (typically the result of choosing local interfaces per policy,
// see host.ChooseInterfaces).
func Open(addrs []net.IP) (*Socket, error) {
	mcAddr := &net.UDPAddr{IP: net.ParseIP(multicastIP), Port: multicastPort}
	mc, err := net.ListenUDP("udp4", &net.UDPAddr{Port: multicastPort})
	if err != nil {
		return nil, fmt.Errorf("ssdp: bind multicast socket: %w", err)
	}
	pc := ipv4.NewPacketConn(mc)
	for _, ifi := range candidateInterfaces(addrs) {
		if err := pc.JoinGroup(ifi, mcAddr); err != nil {
			// A single uncooperative interface must not abort discovery on
			// the others.
			log.Warn(context.Background(), "ssdp: join multicast group failed", "iface", ifi.Name, "error", err)
		}
	}

	s := &Socket{multicast: mc, unicasts: map[string]*net.UDPConn{}}
	for _, ip := range addrs {
		uc, err := bindUnicast(ip)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("ssdp: bind unicast socket for %s: %w", ip, err)
		}
		s.unicasts[ip.String()] = uc
	}
	return s, nil
}

// bindUnicast tries port 1900 first, then scans the ephemeral range until
// a bind succeeds (spec.md §4.3).
func bindUnicast(ip net.IP) (*net.UDPConn, error) {
	if c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: multicastPort}); err == nil {
		return c, nil
	}
	for port := unicastLow; port <= unicastHigh; port++ {
		c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: port})
		if err == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no free port in %d-%d", unicastLow, unicastHigh)
}

func candidateInterfaces(addrs []net.IP) []*net.Interface {
	want := map[string]bool{}
	for _, ip := range addrs {
		want[ip.String()] = true
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []*net.Interface
	for i := range ifaces {
		ifi := ifaces[i]
		ifAddrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifAddrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && want[ipNet.IP.String()] {
				out = append(out, &ifi)
				break
			}
		}
	}
	return out
}

// ReadMulticast blocks until a datagram arrives on the multicast socket.
func (s *Socket) ReadMulticast(buf []byte) (int, *net.UDPAddr, error) {
	return s.multicast.ReadFromUDP(buf)
}

// ReadUnicast blocks until a datagram arrives on the named unicast socket.
func (s *Socket) ReadUnicast(localIP string, buf []byte) (int, *net.UDPAddr, error) {
	c, ok := s.unicasts[localIP]
	if !ok {
		return 0, nil, fmt.Errorf("ssdp: no unicast socket for %s", localIP)
	}
	return c.ReadFromUDP(buf)
}

// Unicasts returns the local addresses with a bound unicast socket.
func (s *Socket) Unicasts() []string {
	out := make([]string, 0, len(s.unicasts))
	for k := range s.unicasts {
		out = append(out, k)
	}
	return out
}

// SendMulticast transmits a datagram to the SSDP multicast group from the
// named local unicast socket, so that any unicast reply lands on a port the
// socket owner is listening on.
func (s *Socket) SendMulticast(localIP string, payload []byte) error {
	c, ok := s.unicasts[localIP]
	if !ok {
		return fmt.Errorf("ssdp: no unicast socket for %s", localIP)
	}
	dst := &net.UDPAddr{IP: net.ParseIP(multicastIP), Port: multicastPort}
	_, err := c.WriteToUDP(payload, dst)
	return err
}

// SendUnicast transmits a datagram directly to dst from the named local
// unicast socket (used for M-SEARCH 200 OK responses).
func (s *Socket) SendUnicast(localIP string, dst *net.UDPAddr, payload []byte) error {
	c, ok := s.unicasts[localIP]
	if !ok {
		return fmt.Errorf("ssdp: no unicast socket for %s", localIP)
	}
	_, err := c.WriteToUDP(payload, dst)
	return err
}

// Close closes every socket the Socket owns.
func (s *Socket) Close() error {
	var firstErr error
	if s.multicast != nil {
		if err := s.multicast.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, c := range s.unicasts {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
