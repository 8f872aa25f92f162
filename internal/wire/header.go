// Package wire implements the HTTP/1.1 subset shared by the SSDP layer
// (HTTP-over-UDP messages) and the GENA/SOAP HTTP layer: case-insensitive
// header parsing, the three-rule body-length algorithm, and a
// threshold-engaged chunked transfer codec (spec.md §4.2).
package wire

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Header is a case-insensitive, single-valued header set. Field names are
// matched without regard to case; field values keep their original casing,
// trimmed of surrounding whitespace. GENA's CALLBACK header packs multiple
// "<url>" tokens into one value — callers split that themselves, Header
// only owns the raw value.
type Header struct {
	values map[string]string // canonical (upper) name -> trimmed value
	names  map[string]string // canonical name -> as-received name, for echoing
}

// NewHeader returns an empty header set.
func NewHeader() *Header {
	return &Header{values: map[string]string{}, names: map[string]string{}}
}

func canon(name string) string { return strings.ToUpper(strings.TrimSpace(name)) }

// Set stores a header, replacing any existing value under the same
// case-insensitive name.
func (h *Header) Set(name, value string) {
	c := canon(name)
	h.values[c] = strings.TrimSpace(value)
	h.names[c] = name
}

// Get returns the header's value and whether it was present.
func (h *Header) Get(name string) (string, bool) {
	v, ok := h.values[canon(name)]
	return v, ok
}

// GetDefault returns the header's value, or def if absent.
func (h *Header) GetDefault(name, def string) string {
	if v, ok := h.Get(name); ok {
		return v
	}
	return def
}

// Has reports whether a header is present regardless of value.
func (h *Header) Has(name string) bool {
	_, ok := h.values[canon(name)]
	return ok
}

// Del removes a header.
func (h *Header) Del(name string) {
	c := canon(name)
	delete(h.values, c)
	delete(h.names, c)
}

// Names returns the stored header names in the casing they were set with,
// sorted for deterministic encoding.
func (h *Header) Names() []string {
	out := make([]string, 0, len(h.names))
	for _, n := range h.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ParseHeaderBlock reads CRLF- or LF-terminated "Name: value" lines from r
// until a blank line, matching the startLine|headers\r\n\r\n shape of both
// SSDP UDP datagrams and HTTP/1.1 messages. It returns the parsed start
// line (the first line, not a header) and the header set.
func ParseHeaderBlock(r *bufio.Reader) (startLine string, h *Header, err error) {
	startLine, err = readLine(r)
	if err != nil {
		return "", nil, err
	}
	h = NewHeader()
	for {
		line, lerr := readLine(r)
		if lerr != nil {
			// A self-contained datagram (SSDP over UDP) may end without a
			// trailing blank line; EOF at this point is a normal terminator,
			// not a parse failure.
			if lerr == io.EOF {
				return startLine, h, nil
			}
			return startLine, h, lerr
		}
		if line == "" {
			break
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue // malformed header line: skip rather than fail the whole message
		}
		h.Set(line[:idx], line[idx+1:])
	}
	return startLine, h, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Encode renders the header block (without the start line or trailing
// blank line) in "Name: value\r\n" form, one per stored header.
func (h *Header) Encode() string {
	var sb strings.Builder
	for _, n := range h.Names() {
		fmt.Fprintf(&sb, "%s: %s\r\n", n, h.values[canon(n)])
	}
	return sb.String()
}
