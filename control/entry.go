// Package control implements the control point registry (spec.md §4.9):
// an SSDP-driven loop that discovers root devices, builds their device
// model from the network, tracks their liveness with a per-device expiry
// timer, and hands live trees to callers for invocation/eventing.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/upnptype"
)

// Entry is one discovered root device: its built tree, the locations it
// has been seen advertised from (a device can be multi-homed), and any
// event subscriptions the caller has placed through it.
type Entry struct {
	UDN       upnptype.UDN
	Tree      *devicemodel.Tree
	Locations []string

	mu     sync.Mutex
	online bool
	subs   map[string]context.CancelFunc // keyed by service event-sub URL; cancelling stops the gena.Client's Run loop
}

// Online reports whether the entry's last byebye/expiry state is live.
func (e *Entry) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

func (e *Entry) setOnline(v bool) { e.mu.Lock(); e.online = v; e.mu.Unlock() }

// addLocation records an additional advertised location for the same
// UDN, deduplicating (spec.md §4.9 "append the new location... to its
// location list").
func (e *Entry) addLocation(loc string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range e.Locations {
		if l == loc {
			return
		}
	}
	e.Locations = append(e.Locations, loc)
}

// DeviceEvent is posted to the registry's Events channel whenever a root
// device transitions online or offline.
type DeviceEvent struct {
	UDN    upnptype.UDN
	Entry  *Entry
	Online bool
	At     time.Time
}
