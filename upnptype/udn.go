// Package upnptype implements the UPnP Device Architecture v1.1 wire-level
// type primitives: UDN, ResourceType, USN, DiscoveryType, ProductTokens,
// Timeout and Sid. Parsers here are total functions: a malformed string
// never panics or returns an error, it returns an explicit invalid value
// that fails every comparison. An invalid UDN keeps and renders its input
// string; every other invalid value renders as "".
package upnptype

import (
	"strings"
)

// UDN is a Unique Device Name: "uuid:<uuid>". An invalid UDN is a distinct
// value (IsValid() == false) that compares unequal to every other UDN,
// including another invalid one, mirroring the source library's decision
// to make invalid objects non-comparable rather than raise.
type UDN struct {
	raw   string
	valid bool
}

const udnPrefix = "uuid:"

// ParseUDN parses "uuid:<uuid>". The <uuid> part is not validated against
// RFC 4122 structure beyond non-emptiness: UDA 1.1 treats it as an opaque
// token, and real-world devices occasionally carry non-RFC4122 tokens
// after the "uuid:" prefix.
func ParseUDN(s string) UDN {
	if !strings.HasPrefix(s, udnPrefix) {
		return UDN{raw: s, valid: false}
	}
	id := s[len(udnPrefix):]
	if id == "" {
		return UDN{raw: s, valid: false}
	}
	return UDN{raw: s, valid: true}
}

// IsValid reports whether the UDN parsed successfully.
func (u UDN) IsValid() bool { return u.valid }

// String returns the canonical "uuid:<uuid>" form. parse(s).String() == s
// for every valid input (spec.md §8 property 1).
func (u UDN) String() string { return u.raw }

// Equal compares two UDNs by canonical string form. Invalid UDNs never
// equal anything, even another invalid UDN with the same raw string.
func (u UDN) Equal(other UDN) bool {
	if !u.valid || !other.valid {
		return false
	}
	return u.raw == other.raw
}
