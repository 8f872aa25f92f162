package ssdp

import (
	"math/rand"
	"time"

	"github.com/upnpda/upnpda/upnptype"
)

// Target is one NOTIFY/search-response identity a device host advertises:
// a single NT (upnp:rootdevice, a bare UDN, or a device/service
// ResourceType) paired with its USN. A root device with N embedded devices
// and M services in total advertises 1 (rootdevice) + (1+N) (UDNs) +
// (1+N) (device types, root's own plus each embedded) + M (service types)
// = 3 + 2N + M targets, each sent 3 times per advertisement round.
type Target struct {
	NT  upnptype.DiscoveryType
	USN upnptype.USN
}

// MatchTargets implements the UDA 1.1 §1.3.3 M-SEARCH matching rules
// (spec.md §4.3 "Search answering") against a flattened target list.
func MatchTargets(st upnptype.DiscoveryType, targets []Target) []Target {
	var out []Target
	switch st.Kind() {
	case upnptype.ResourceAll:
		out = append(out, targets...)
	case upnptype.ResourceRootDevice:
		for _, t := range targets {
			if t.NT.Kind() == upnptype.ResourceRootDevice {
				out = append(out, t)
			}
		}
	case upnptype.ResourceUDN:
		want := st.UDN()
		for _, t := range targets {
			if t.NT.Kind() == upnptype.ResourceUDN && t.NT.UDN().Equal(want) {
				out = append(out, t)
			}
		}
	case upnptype.ResourceTypeKind:
		want := st.ResourceType()
		for _, t := range targets {
			if t.NT.Kind() == upnptype.ResourceTypeKind && t.NT.ResourceType().Matches(want, upnptype.VersionInclusive) {
				out = append(out, t)
			}
		}
	}
	return out
}

// SearchDelay picks the per-response random delay in [0, mx] seconds that
// spec.md §4.3 requires before answering an M-SEARCH, so that a flood of
// devices answering the same search does not collide on the wire.
func SearchDelay(mx int) time.Duration {
	if mx < 1 {
		mx = 1
	}
	return time.Duration(rand.Int63n(int64(mx)+1)) * time.Second
}

// AdvertiseJitter returns a re-advertisement interval jittered around base,
// within +/-10%, so that many devices sharing a max-age don't resynchronize
// their NOTIFY bursts over time.
func AdvertiseJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	spread := int64(base) / 10
	if spread <= 0 {
		return base
	}
	delta := rand.Int63n(2*spread+1) - spread
	return base + time.Duration(delta)
}
