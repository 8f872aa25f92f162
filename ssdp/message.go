// Package ssdp implements the Simple Service Discovery Protocol endpoint:
// multicast/unicast UDP sockets, the five HTTP-over-UDP message shapes UDA
// 1.1 §1 defines, search-answering, and the jittered advertisement
// schedule. It is the UDP sibling of internal/wire, which owns the HTTP/1.1
// header grammar shared by both transports.
package ssdp

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/upnpda/upnpda/internal/wire"
	"github.com/upnpda/upnpda/upnptype"
)

// MulticastAddr is the UDA 1.1 SSDP multicast group and port.
const MulticastAddr = "239.255.255.250:1900"

// MaxDatagramSize bounds a single SSDP message; larger datagrams are
// dropped (spec.md §6).
const MaxDatagramSize = 1472

// NTS discriminates the three NOTIFY sub-types.
type NTS string

const (
	NTSAlive  NTS = "ssdp:alive"
	NTSByeBye NTS = "ssdp:byebye"
	NTSUpdate NTS = "ssdp:update"
)

// Alive is a ResourceAvailable NOTIFY (spec.md §4.3 table row 1).
type Alive struct {
	MaxAge   int
	Location string
	NT       upnptype.DiscoveryType
	Server   upnptype.ProductTokens
	USN      upnptype.USN
	BootID   int
	ConfigID int
}

// ByeBye is a ResourceUnavailable NOTIFY.
type ByeBye struct {
	NT       upnptype.DiscoveryType
	USN      upnptype.USN
	BootID   int
	ConfigID int
}

// Update is a ResourceUpdate NOTIFY, signaling a LOCATION/resource-type
// change without a full byebye+alive cycle (SUPPLEMENTED per
// herqq/hupnp, see DESIGN.md).
type Update struct {
	Location   string
	NT         upnptype.DiscoveryType
	USN        upnptype.USN
	BootID     int
	ConfigID   int
	NextBootID int
}

// SearchRequest is an M-SEARCH DiscoveryRequest.
type SearchRequest struct {
	MX        int
	ST        upnptype.DiscoveryType
	UserAgent upnptype.ProductTokens
}

// SearchResponse is the 200 OK DiscoveryResponse to an M-SEARCH.
type SearchResponse struct {
	MaxAge   int
	Location string
	Server   upnptype.ProductTokens
	ST       upnptype.DiscoveryType
	USN      upnptype.USN
	BootID   int
	ConfigID int
}

// clampMaxAge bounds CACHE-CONTROL max-age to [60, 86400] on send (spec.md
// §4.3); values received from the wire are accepted as-is by the decoders.
func clampMaxAge(seconds int) int {
	switch {
	case seconds < 60:
		return 60
	case seconds > 86400:
		return 86400
	default:
		return seconds
	}
}

// clampMX bounds MX to [1, 5] on send.
func clampMX(mx int) int {
	if mx > 5 {
		return 5
	}
	if mx < 1 {
		return 1
	}
	return mx
}

// EncodeAlive renders the NOTIFY/alive datagram.
func EncodeAlive(a Alive) []byte {
	h := wire.NewHeader()
	h.Set("HOST", MulticastAddr)
	h.Set("CACHE-CONTROL", fmt.Sprintf("max-age=%d", clampMaxAge(a.MaxAge)))
	h.Set("LOCATION", a.Location)
	h.Set("NT", a.NT.String())
	h.Set("NTS", string(NTSAlive))
	h.Set("SERVER", a.Server.String())
	h.Set("USN", a.USN.String())
	h.Set("BOOTID.UPNP.ORG", strconv.Itoa(a.BootID))
	h.Set("CONFIGID.UPNP.ORG", strconv.Itoa(a.ConfigID))
	return []byte("NOTIFY * HTTP/1.1\r\n" + h.Encode() + "\r\n")
}

// EncodeByeBye renders the NOTIFY/byebye datagram.
func EncodeByeBye(b ByeBye) []byte {
	h := wire.NewHeader()
	h.Set("HOST", MulticastAddr)
	h.Set("NT", b.NT.String())
	h.Set("NTS", string(NTSByeBye))
	h.Set("USN", b.USN.String())
	h.Set("BOOTID.UPNP.ORG", strconv.Itoa(b.BootID))
	h.Set("CONFIGID.UPNP.ORG", strconv.Itoa(b.ConfigID))
	return []byte("NOTIFY * HTTP/1.1\r\n" + h.Encode() + "\r\n")
}

// EncodeUpdate renders the NOTIFY/update datagram.
func EncodeUpdate(u Update) []byte {
	h := wire.NewHeader()
	h.Set("HOST", MulticastAddr)
	h.Set("LOCATION", u.Location)
	h.Set("NT", u.NT.String())
	h.Set("NTS", string(NTSUpdate))
	h.Set("USN", u.USN.String())
	h.Set("BOOTID.UPNP.ORG", strconv.Itoa(u.BootID))
	h.Set("CONFIGID.UPNP.ORG", strconv.Itoa(u.ConfigID))
	h.Set("NEXTBOOTID.UPNP.ORG", strconv.Itoa(u.NextBootID))
	return []byte("NOTIFY * HTTP/1.1\r\n" + h.Encode() + "\r\n")
}

// EncodeSearchRequest renders the M-SEARCH datagram.
func EncodeSearchRequest(s SearchRequest) []byte {
	h := wire.NewHeader()
	h.Set("HOST", MulticastAddr)
	h.Set("MAN", `"ssdp:discover"`)
	h.Set("MX", strconv.Itoa(clampMX(s.MX)))
	h.Set("ST", s.ST.String())
	h.Set("USER-AGENT", s.UserAgent.String())
	return []byte("M-SEARCH * HTTP/1.1\r\n" + h.Encode() + "\r\n")
}

// EncodeSearchResponse renders the 200 OK datagram.
func EncodeSearchResponse(r SearchResponse) []byte {
	h := wire.NewHeader()
	h.Set("CACHE-CONTROL", fmt.Sprintf("max-age=%d", clampMaxAge(r.MaxAge)))
	h.Set("DATE", time.Now().UTC().Format(time.RFC1123))
	h.Set("EXT", "")
	h.Set("LOCATION", r.Location)
	h.Set("SERVER", r.Server.String())
	h.Set("ST", r.ST.String())
	h.Set("USN", r.USN.String())
	h.Set("BOOTID.UPNP.ORG", strconv.Itoa(r.BootID))
	h.Set("CONFIGID.UPNP.ORG", strconv.Itoa(r.ConfigID))
	return []byte("HTTP/1.1 200 OK\r\n" + h.Encode() + "\r\n")
}

// Message is the decoded union of everything Decode can produce.
type Message struct {
	Kind           Kind
	Alive          Alive
	ByeBye         ByeBye
	Update         Update
	SearchRequest  SearchRequest
	SearchResponse SearchResponse
}

// Kind discriminates the decoded Message variant.
type Kind int

const (
	KindInvalid Kind = iota
	KindAlive
	KindByeBye
	KindUpdate
	KindSearchRequest
	KindSearchResponse
)

func (k Kind) String() string {
	switch k {
	case KindAlive:
		return "alive"
	case KindByeBye:
		return "byebye"
	case KindUpdate:
		return "update"
	case KindSearchRequest:
		return "search-request"
	case KindSearchResponse:
		return "search-response"
	default:
		return "invalid"
	}
}

// Decode parses a raw SSDP datagram into a typed Message. Malformed input
// returns KindInvalid rather than an error, matching spec.md §4.3/§7's
// "parse failures discard the message" rule — callers simply drop
// KindInvalid messages.
func Decode(raw []byte) Message {
	if len(raw) > MaxDatagramSize {
		return Message{Kind: KindInvalid}
	}
	br := bufio.NewReader(bytes.NewReader(raw))
	startLine, h, err := wire.ParseHeaderBlock(br)
	if err != nil {
		return Message{Kind: KindInvalid}
	}
	fields := strings.Fields(startLine)
	if len(fields) < 1 {
		return Message{Kind: KindInvalid}
	}

	switch {
	case fields[0] == "NOTIFY":
		return decodeNotify(h)
	case fields[0] == "M-SEARCH":
		return decodeSearchRequest(h)
	case strings.HasPrefix(startLine, "HTTP/1.1 200") || strings.HasPrefix(startLine, "HTTP/1.0 200"):
		return decodeSearchResponse(h)
	default:
		return Message{Kind: KindInvalid}
	}
}

func intHeader(h *wire.Header, name string) int {
	v, ok := h.Get(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

func decodeNotify(h *wire.Header) Message {
	nts, _ := h.Get("NTS")
	nt := upnptype.ParseDiscoveryType(h.GetDefault("NT", ""))
	usn := upnptype.ParseUSN(h.GetDefault("USN", ""))
	if !nt.IsValid() || !usn.IsValid() {
		return Message{Kind: KindInvalid}
	}
	bootID := intHeader(h, "BOOTID.UPNP.ORG")
	configID := intHeader(h, "CONFIGID.UPNP.ORG")

	switch NTS(nts) {
	case NTSAlive:
		maxAge := parseMaxAge(h.GetDefault("CACHE-CONTROL", ""))
		server, _ := upnptype.ParseProductTokens(h.GetDefault("SERVER", ""))
		return Message{Kind: KindAlive, Alive: Alive{
			MaxAge: maxAge, Location: h.GetDefault("LOCATION", ""),
			NT: nt, Server: server, USN: usn, BootID: bootID, ConfigID: configID,
		}}
	case NTSByeBye:
		return Message{Kind: KindByeBye, ByeBye: ByeBye{NT: nt, USN: usn, BootID: bootID, ConfigID: configID}}
	case NTSUpdate:
		nextBoot := intHeader(h, "NEXTBOOTID.UPNP.ORG")
		return Message{Kind: KindUpdate, Update: Update{
			Location: h.GetDefault("LOCATION", ""), NT: nt, USN: usn,
			BootID: bootID, ConfigID: configID, NextBootID: nextBoot,
		}}
	default:
		return Message{Kind: KindInvalid}
	}
}

func decodeSearchRequest(h *wire.Header) Message {
	man, _ := h.Get("MAN")
	if strings.Trim(man, " ") != `"ssdp:discover"` {
		return Message{Kind: KindInvalid}
	}
	mx, err := strconv.Atoi(strings.TrimSpace(h.GetDefault("MX", "")))
	if err != nil || mx < 1 {
		return Message{Kind: KindInvalid}
	}
	st := upnptype.ParseDiscoveryType(h.GetDefault("ST", ""))
	if !st.IsValid() {
		return Message{Kind: KindInvalid}
	}
	ua, _ := upnptype.ParseProductTokens(h.GetDefault("USER-AGENT", ""))
	return Message{Kind: KindSearchRequest, SearchRequest: SearchRequest{MX: clampMX(mx), ST: st, UserAgent: ua}}
}

func decodeSearchResponse(h *wire.Header) Message {
	st := upnptype.ParseDiscoveryType(h.GetDefault("ST", ""))
	usn := upnptype.ParseUSN(h.GetDefault("USN", ""))
	if !st.IsValid() || !usn.IsValid() {
		return Message{Kind: KindInvalid}
	}
	server, _ := upnptype.ParseProductTokens(h.GetDefault("SERVER", ""))
	maxAge := parseMaxAge(h.GetDefault("CACHE-CONTROL", ""))
	return Message{Kind: KindSearchResponse, SearchResponse: SearchResponse{
		MaxAge: maxAge, Location: h.GetDefault("LOCATION", ""), Server: server,
		ST: st, USN: usn, BootID: intHeader(h, "BOOTID.UPNP.ORG"), ConfigID: intHeader(h, "CONFIGID.UPNP.ORG"),
	}}
}

func parseMaxAge(cacheControl string) int {
	const prefix = "max-age="
	idx := strings.Index(strings.ToLower(cacheControl), prefix)
	if idx < 0 {
		return 0
	}
	rest := cacheControl[idx+len(prefix):]
	end := strings.IndexAny(rest, ", ")
	if end >= 0 {
		rest = rest[:end]
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0
	}
	return n
}
