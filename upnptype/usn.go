package upnptype

import "strings"

// ResourceIdentifierKind discriminates the variants a USN/search-target
// resource identifier can take. This unifies the source library's two
// parallel classes (HResourceIdentifier and HDiscoveryType — see
// spec.md §9 Open Questions) into one type.
type ResourceIdentifierKind int

const (
	ResourceAll ResourceIdentifierKind = iota // ssdp:all
	ResourceRootDevice                        // upnp:rootdevice
	ResourceUDN                                // a bare uuid:<udn>
	ResourceTypeKind                              // a ResourceType (device or service)
)

// DiscoveryType is the union of resource identifiers permitted in SSDP
// ST/NT headers: "ssdp:all", "upnp:rootdevice", a bare UDN, or a
// ResourceType. Exactly one of the typed fields is meaningful, selected by
// Kind.
type DiscoveryType struct {
	kind  ResourceIdentifierKind
	udn   UDN
	rtype ResourceType
	valid bool
}

const (
	stAll         = "ssdp:all"
	stRootDevice  = "upnp:rootdevice"
)

// ParseDiscoveryType parses an ST/NT header value.
func ParseDiscoveryType(s string) DiscoveryType {
	switch s {
	case stAll:
		return DiscoveryType{kind: ResourceAll, valid: true}
	case stRootDevice:
		return DiscoveryType{kind: ResourceRootDevice, valid: true}
	}
	if strings.HasPrefix(s, udnPrefix) && !strings.Contains(s, "::") {
		udn := ParseUDN(s)
		if !udn.IsValid() {
			return DiscoveryType{valid: false}
		}
		return DiscoveryType{kind: ResourceUDN, udn: udn, valid: true}
	}
	rt := ParseResourceType(s)
	if !rt.IsValid() {
		return DiscoveryType{valid: false}
	}
	return DiscoveryType{kind: ResourceTypeKind, rtype: rt, valid: true}
}

func (d DiscoveryType) IsValid() bool                      { return d.valid }
func (d DiscoveryType) Kind() ResourceIdentifierKind        { return d.kind }
func (d DiscoveryType) UDN() UDN                            { return d.udn }
func (d DiscoveryType) ResourceType() ResourceType          { return d.rtype }

// String returns the canonical wire form.
func (d DiscoveryType) String() string {
	if !d.valid {
		return ""
	}
	switch d.kind {
	case ResourceAll:
		return stAll
	case ResourceRootDevice:
		return stRootDevice
	case ResourceUDN:
		return d.udn.String()
	case ResourceTypeKind:
		return d.rtype.String()
	default:
		return ""
	}
}

// USN is a Unique Service Name: UDN plus an optional resource identifier,
// "<udn>[::<resource-identifier>]".
type USN struct {
	udn   UDN
	rid   DiscoveryType
	hasRID bool
	valid bool
}

// NewUSN builds a USN from a UDN and an optional resource identifier.
func NewUSN(udn UDN, rid *DiscoveryType) USN {
	if !udn.IsValid() {
		return USN{valid: false}
	}
	if rid == nil {
		return USN{udn: udn, valid: true}
	}
	if !rid.IsValid() {
		return USN{valid: false}
	}
	return USN{udn: udn, rid: *rid, hasRID: true, valid: true}
}

// ParseUSN parses "<udn>[::<resource-identifier>]".
func ParseUSN(s string) USN {
	idx := strings.Index(s, "::")
	if idx < 0 {
		udn := ParseUDN(s)
		if !udn.IsValid() {
			return USN{valid: false}
		}
		return USN{udn: udn, valid: true}
	}
	udn := ParseUDN(s[:idx])
	if !udn.IsValid() {
		return USN{valid: false}
	}
	rid := ParseDiscoveryType(s[idx+2:])
	if !rid.IsValid() {
		return USN{valid: false}
	}
	return USN{udn: udn, rid: rid, hasRID: true, valid: true}
}

func (u USN) IsValid() bool { return u.valid }
func (u USN) UDN() UDN      { return u.udn }

// ResourceIdentifier returns the trailing discriminator and whether one was
// present.
func (u USN) ResourceIdentifier() (DiscoveryType, bool) { return u.rid, u.hasRID }

// String returns the canonical wire form.
func (u USN) String() string {
	if !u.valid {
		return ""
	}
	if !u.hasRID {
		return u.udn.String()
	}
	return u.udn.String() + "::" + u.rid.String()
}
