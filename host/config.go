package host

import (
	"time"

	"github.com/upnpda/upnpda/description"
	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/soap"
)

// ActionHandlers maps an action name to its implementation, returned by a
// ServiceConstructor for one service instance.
type ActionHandlers map[string]soap.ActionFunc

// ServiceConstructor builds the user service code for one service once
// the device tree is known, keyed in DeviceConfig.Services by the
// service's ServiceID as written in the root description (spec.md §4.8
// "constructor for user service code").
type ServiceConstructor func(svc *devicemodel.Service) ActionHandlers

// DeviceConfig is one device configuration the host loads: the root
// description document, the SCPD document for each of its services, an
// optional icon byte-set, and the advertisement interval and action
// handlers for the resulting tree — spec.md §4.8.
type DeviceConfig struct {
	Description []byte
	// SCPDs maps a service's ServiceID to its SCPD document bytes.
	SCPDs map[string][]byte
	// Icons maps an icon's URL as written in the description to its bytes.
	Icons map[string][]byte

	AdvertiseInterval time.Duration
	Mode              description.Mode
	Factory           devicemodel.Factory

	// Services maps a ServiceID to the constructor for its action
	// handlers. A service with no entry answers each of its declared
	// actions with a 602 Optional Action Not Implemented fault (HTTP 401).
	Services map[string]ServiceConstructor
}
