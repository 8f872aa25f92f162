package host

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/ssdp"
	"github.com/upnpda/upnpda/upnptype"
)

// descriptionPath is the fixed path every device's root description is
// served at, grounded on the teacher's router.Get("/device.xml", ...)
// (server/dlna/dlna.go). prefix distinguishes devices sharing one Host
// ("/dev0", "/dev1", ...) so their routes never collide.
func descriptionPath(prefix string) string { return prefix + "/device.xml" }

func scpdPath(prefix, serviceID string) string {
	return prefix + "/" + sanitizeID(serviceID) + "/scpd.xml"
}

func controlPath(prefix, serviceID string) string {
	return prefix + "/" + sanitizeID(serviceID) + "/control"
}

func eventSubPath(prefix, serviceID string) string {
	return prefix + "/" + sanitizeID(serviceID) + "/event"
}

func iconPath(prefix, rel string) string {
	return prefix + "/icon/" + sanitizeID(rel)
}

// sanitizeID strips characters that would need escaping in a URL path;
// ServiceID values are typically "urn:upnp-org:serviceId:Foo" and only the
// trailing component is distinctive.
func sanitizeID(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return url.PathEscape(s)
}

// assignURLs fills in every absolute URL the host is responsible for
// (spec.md §4.8 "the host, not the description author, assigns
// control/eventSub/SCPD/icon URLs"): device icons and every service's
// SCPD/control/eventSub URL, all rooted at baseURL.
func assignURLs(tree *devicemodel.Tree, baseURL, prefix string) {
	for _, d := range tree.AllDevices() {
		for i := range d.Icons {
			d.Icons[i].URL = baseURL + iconPath(prefix, d.Icons[i].URL)
		}
		for _, svc := range d.Services {
			svc.SCPDURL = baseURL + scpdPath(prefix, svc.ServiceID)
			svc.ControlURL = baseURL + controlPath(prefix, svc.ServiceID)
			svc.EventSubURL = baseURL + eventSubPath(prefix, svc.ServiceID)
		}
	}
}

// buildTargets produces the full UDA 1.1 SSDP target enumeration for
// tree: for every device, one target each for upnp:rootdevice (root
// only), its UDN, and its device type; for every service, one target for
// its service type. A narrower "one target per device/service" set (as a
// literal reading of spec.md §4.3's advertisement count would suggest)
// would leave ST=upnp:rootdevice and ST=uuid:<udn> M-SEARCH requests
// unanswerable, since ssdp.MatchTargets matches each ST kind against a
// distinct Target.NT kind.
func buildTargets(tree *devicemodel.Tree) []ssdp.Target {
	var out []ssdp.Target
	for _, d := range tree.AllDevices() {
		udn := d.UDN
		if d == tree.Root {
			rootNT := upnptype.ParseDiscoveryType("upnp:rootdevice")
			out = append(out, ssdp.Target{NT: rootNT, USN: upnptype.NewUSN(udn, &rootNT)})
		}
		udnNT := upnptype.ParseDiscoveryType(udn.String())
		out = append(out, ssdp.Target{NT: udnNT, USN: upnptype.NewUSN(udn, nil)})

		typeNT := upnptype.ParseDiscoveryType(d.DeviceType.String())
		out = append(out, ssdp.Target{NT: typeNT, USN: upnptype.NewUSN(udn, &typeNT)})

		for _, svc := range d.Services {
			svcNT := upnptype.ParseDiscoveryType(svc.ServiceType.String())
			out = append(out, ssdp.Target{NT: svcNT, USN: upnptype.NewUSN(udn, &svcNT)})
		}
	}
	return out
}

// devicePublisher adapts one loadedDevice to ssdp.Publisher.
type devicePublisher struct {
	host   *Host
	device *loadedDevice
}

func (p *devicePublisher) Targets() []ssdp.Target { return p.device.targets }

func (p *devicePublisher) Location(localIP string) string {
	p.host.mu.RLock()
	base := p.host.baseURL
	p.host.mu.RUnlock()
	// baseURL was built from the interface ChooseInterfaces preferred;
	// when advertising out a different local interface, substitute its
	// address so the LOCATION header is reachable from that network.
	if u, err := url.Parse(base); err == nil && localIP != "" {
		u.Host = fmt.Sprintf("%s:%s", localIP, u.Port())
		base = u.String()
	}
	return base + descriptionPath(p.device.prefix)
}

func (p *devicePublisher) Server() upnptype.ProductTokens { return p.host.serverToken() }

func (p *devicePublisher) CacheControlMaxAge() int {
	interval := p.device.cfg.AdvertiseInterval
	if interval < minAdvertiseInterval {
		interval = minAdvertiseInterval
	}
	return int((interval * 2) / time.Second)
}

func (p *devicePublisher) BootID() int   { return p.host.bootID }
func (p *devicePublisher) ConfigID() int { return p.host.configID }
