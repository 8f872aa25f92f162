package upnptype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ProductTokens is the SERVER/USER-AGENT header value, e.g.
// "Linux/5.10 UPnP/1.1 upnpda/1.0". Each token is "name/version".
type ProductTokens struct {
	OS, OSVersion       string
	UPnPVersion         string
	Product, ProductVer string
}

// String renders the three required product tokens in order.
func (p ProductTokens) String() string {
	return fmt.Sprintf("%s/%s UPnP/%s %s/%s", p.OS, p.OSVersion, p.UPnPVersion, p.Product, p.ProductVer)
}

// ParseProductTokens parses a SERVER/USER-AGENT header value. Returns false
// if it does not have at least the three slash-separated tokens UDA 1.1
// requires.
func ParseProductTokens(s string) (ProductTokens, bool) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return ProductTokens{}, false
	}
	os := splitToken(fields[0])
	upnp := splitToken(fields[1])
	prod := splitToken(fields[2])
	if upnp[0] != "UPnP" {
		return ProductTokens{}, false
	}
	return ProductTokens{
		OS: os[0], OSVersion: os[1],
		UPnPVersion:  upnp[1],
		Product:      prod[0],
		ProductVer:   prod[1],
	}, true
}

func splitToken(tok string) [2]string {
	idx := strings.LastIndex(tok, "/")
	if idx < 0 {
		return [2]string{tok, ""}
	}
	return [2]string{tok[:idx], tok[idx+1:]}
}

// Timeout represents a GENA TIMEOUT header value: "Second-N" or
// "Second-infinite". A zero Seconds with Infinite=false is not a valid
// timeout; use NewTimeout/InfiniteTimeout to construct one.
type Timeout struct {
	Infinite bool
	Seconds  int
	valid    bool
}

// NewTimeout constructs a finite timeout.
func NewTimeout(seconds int) Timeout { return Timeout{Seconds: seconds, valid: seconds > 0} }

// InfiniteTimeout constructs the "Second-infinite" timeout.
func InfiniteTimeout() Timeout { return Timeout{Infinite: true, valid: true} }

// ParseTimeout parses a TIMEOUT header value.
func ParseTimeout(s string) Timeout {
	const prefix = "Second-"
	if !strings.HasPrefix(s, prefix) {
		return Timeout{}
	}
	rest := s[len(prefix):]
	if rest == "infinite" {
		return InfiniteTimeout()
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return Timeout{}
	}
	return NewTimeout(n)
}

func (t Timeout) IsValid() bool { return t.valid }

// String renders the canonical "Second-N" / "Second-infinite" form.
func (t Timeout) String() string {
	if !t.valid {
		return ""
	}
	if t.Infinite {
		return "Second-infinite"
	}
	return fmt.Sprintf("Second-%d", t.Seconds)
}

// Sid is a GENA subscription identifier, "uuid:<uuid>".
type Sid struct {
	raw   string
	valid bool
}

// NewSid mints a fresh subscription id.
func NewSid() Sid {
	return Sid{raw: udnPrefix + uuid.NewString(), valid: true}
}

// ParseSid parses an existing SID header value.
func ParseSid(s string) Sid {
	if !strings.HasPrefix(s, udnPrefix) || s == udnPrefix {
		return Sid{}
	}
	return Sid{raw: s, valid: true}
}

func (s Sid) IsValid() bool   { return s.valid }
func (s Sid) String() string  { return s.raw }
func (s Sid) Equal(o Sid) bool {
	if !s.valid || !o.valid {
		return false
	}
	return s.raw == o.raw
}

// NewUUID mints a UDN-shaped "uuid:<uuid>" string, used both for device
// UDNs and for the DLNA-style stable friendly-device identifiers.
func NewUUID() string { return udnPrefix + uuid.NewString() }
