package devicemodel

import "github.com/upnpda/upnpda/upnptype"

// DeviceInfo is the subset of a parsed <device> element passed to a
// Factory's MakeDevice, before the generic Device struct is constructed
// around whatever it returns.
type DeviceInfo struct {
	UDN        upnptype.UDN
	DeviceType upnptype.ResourceType
}

// Factory mints specialized device/service objects, replacing the source
// library's user-provided creator classes (spec.md §9 "Dynamic dispatch
// and creators") with a single injected interface. DefaultFactory returns
// plain *Device/*Service values with no specialization.
type Factory interface {
	MakeDevice(info DeviceInfo) *Device
	MakeService(rtype upnptype.ResourceType) *Service
}

// DefaultFactory is the zero-value Factory: every device and service is a
// plain, generic *Device/*Service.
type DefaultFactory struct{}

func (DefaultFactory) MakeDevice(info DeviceInfo) *Device {
	return &Device{UDN: info.UDN, DeviceType: info.DeviceType}
}

func (DefaultFactory) MakeService(rtype upnptype.ResourceType) *Service {
	return &Service{ServiceType: rtype}
}
