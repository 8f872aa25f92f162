package upnptype

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates a ResourceType between device and service.
type Kind string

const (
	KindDevice  Kind = "device"
	KindService Kind = "service"
)

// VersionMatch selects how ResourceType.Matches compares versions.
type VersionMatch int

const (
	// VersionExact requires the versions to be identical.
	VersionExact VersionMatch = iota
	// VersionInclusive accepts a candidate whose version is less than or
	// equal to the wanted version (a v1 control point accepts a v2
	// device advertising itself with type version 1, UDA 1.1 §2.3).
	VersionInclusive
)

// ResourceType is "urn:<domain>:<device|service>:<name>:<ver>".
type ResourceType struct {
	urn     string // always "urn", kept for round-trip fidelity
	domain  string // wire form: dots already rewritten to hyphens
	kind    Kind
	name    string
	version int
	valid   bool
}

// ParseResourceType parses the five colon-separated fields. The domain is
// stored in its wire form (dots already hyphenated by the caller/producer);
// ParseResourceType does not itself rewrite dots, since it must be able to
// round-trip a string it did not produce (spec.md §8 property 2). Use
// NewResourceType to construct one from a dotted domain with normalization.
func ParseResourceType(s string) ResourceType {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "urn" {
		return ResourceType{valid: false}
	}
	kind := Kind(parts[2])
	if kind != KindDevice && kind != KindService {
		return ResourceType{valid: false}
	}
	if parts[1] == "" || parts[3] == "" {
		return ResourceType{valid: false}
	}
	ver, err := strconv.Atoi(parts[4])
	if err != nil || ver < 0 {
		return ResourceType{valid: false}
	}
	return ResourceType{
		urn:     parts[0],
		domain:  parts[1],
		kind:    kind,
		name:    parts[3],
		version: ver,
		valid:   true,
	}
}

// NewResourceType constructs a ResourceType from a (possibly dotted) domain,
// normalizing it to wire form ("schemas.my.com" -> "schemas-my-com") as
// UDA 1.1 requires for vendor domains.
func NewResourceType(domain string, kind Kind, name string, version int) ResourceType {
	return ResourceType{
		urn:     "urn",
		domain:  strings.ReplaceAll(domain, ".", "-"),
		kind:    kind,
		name:    name,
		version: version,
		valid:   true,
	}
}

func (r ResourceType) IsValid() bool { return r.valid }
func (r ResourceType) Kind() Kind    { return r.kind }
func (r ResourceType) Name() string  { return r.name }
func (r ResourceType) Domain() string { return r.domain }
func (r ResourceType) Version() int  { return r.version }

// IsStandard reports whether the domain is the UDA-standard namespace, as
// opposed to a vendor domain.
func (r ResourceType) IsStandard() bool { return r.domain == "schemas-upnp-org" }

// String returns the canonical wire form.
func (r ResourceType) String() string {
	if !r.valid {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d", r.urn, r.domain, r.kind, r.name, r.version)
}

// Equal compares the full canonical string.
func (r ResourceType) Equal(other ResourceType) bool {
	if !r.valid || !other.valid {
		return false
	}
	return r.String() == other.String()
}

// Matches implements compare(type, match-mode): standard-vs-vendor and
// version comparison per mode. Domain and kind and name must match exactly
// regardless of mode; only the version comparison varies.
func (r ResourceType) Matches(want ResourceType, mode VersionMatch) bool {
	if !r.valid || !want.valid {
		return false
	}
	if r.domain != want.domain || r.kind != want.kind || r.name != want.name {
		return false
	}
	switch mode {
	case VersionInclusive:
		return r.version <= want.version
	default:
		return r.version == want.version
	}
}
