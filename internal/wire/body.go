package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrTransport marks a read/write failure on the underlying connection, as
// distinct from ErrParse (spec.md §7: Parse error vs Transport error).
var ErrTransport = errors.New("wire: transport error")

// ErrParse marks a malformed message.
var ErrParse = errors.New("wire: parse error")

// ReadBody consumes the entity body following a header block according to
// the three rules in spec.md §4.2, in order: chunked transfer-encoding,
// then Content-Length, then read-until-close.
func ReadBody(r *bufio.Reader, h *Header) ([]byte, error) {
	if te, ok := h.Get("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		return readChunked(r)
	}
	if cl, ok := h.Get("Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid Content-Length %q", ErrParse, cl)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return buf, nil
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return body, nil
}

// readChunked reads chunks until the zero-size terminator, discarding
// trailers (spec.md §4.2 rule 1).
func readChunked(r *bufio.Reader) ([]byte, error) {
	var out []byte
	for {
		sizeLine, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		// Chunk extensions (";ext=value") are accepted and ignored.
		sizeLine = strings.TrimSpace(strings.SplitN(sizeLine, ";", 2)[0])
		size, err := strconv.ParseInt(sizeLine, 16, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: bad chunk size %q", ErrParse, sizeLine)
		}
		if size == 0 {
			// Discard trailer headers up to the blank line.
			for {
				line, err := readLine(r)
				if err != nil || line == "" {
					break
				}
			}
			return out, nil
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		out = append(out, buf...)
		// Consume the trailing CRLF after each chunk's data.
		if _, err := readLine(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
}

// DefaultChunkThreshold is the payload size above which WriteBody engages
// chunked transfer encoding rather than a Content-Length framing, per
// spec.md §9 ("the source uses a runtime-configurable knob with no default
// documented; this spec sets the default to 1 MiB").
const DefaultChunkThreshold = 1 << 20

// DefaultChunkSize bounds the size of each emitted chunk.
const DefaultChunkSize = 64 * 1024

// WriteBody writes body to w, engaging chunked encoding automatically when
// len(body) exceeds threshold (0 means DefaultChunkThreshold); otherwise it
// sets Content-Length and writes the body verbatim. It mutates h to add the
// framing header the caller must then write before the body.
func WriteBody(w io.Writer, h *Header, body []byte, threshold int) error {
	if threshold <= 0 {
		threshold = DefaultChunkThreshold
	}
	if len(body) > threshold {
		h.Set("Transfer-Encoding", "chunked")
		h.Del("Content-Length")
		return writeChunked(w, body, DefaultChunkSize)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Del("Transfer-Encoding")
	_, err := w.Write(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func writeChunked(w io.Writer, body []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	for len(body) > 0 {
		n := chunkSize
		if n > len(body) {
			n = len(body)
		}
		if _, err := fmt.Fprintf(w, "%x\r\n", n); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if _, err := w.Write(body[:n]); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		body = body[n:]
	}
	_, err := io.WriteString(w, "0\r\n\r\n")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// KeepAlive reports whether the connection should remain open after this
// message, per HTTP/1.0 vs HTTP/1.1 defaults and an explicit Connection
// header (spec.md §4.2 "Connection discipline").
func KeepAlive(httpVersionMinor int, h *Header) bool {
	conn, _ := h.Get("Connection")
	conn = strings.ToLower(conn)
	switch {
	case strings.Contains(conn, "close"):
		return false
	case strings.Contains(conn, "keep-alive"):
		return true
	default:
		return httpVersionMinor >= 1 // HTTP/1.1 defaults to keep-alive, HTTP/1.0 to close
	}
}
