package wire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/upnpda/upnpda/internal/log"
)

// IdleTimeout is how long the server keeps a keep-alive connection open
// waiting for the next request (spec.md §4.2 "30 s idle").
const IdleTimeout = 30 * time.Second

// Server accepts TCP connections and dispatches complete requests to an
// http.Handler, implementing the header/chunked/keep-alive rules in
// internal/wire itself rather than delegating to net/http's server loop —
// this is the component spec.md §2 calls out as "the real engineering"
// shared by SSDP responders and GENA endpoints. A chi.Router (or any
// http.Handler) can be mounted directly as Handler, since requests/
// responses are bridged to the standard net/http types.
type Server struct {
	Handler        http.Handler
	ChunkThreshold int // 0 = DefaultChunkThreshold

	ln net.Listener
}

// Serve accepts connections from ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.ln = ln
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn(ctx, "wire: accept failed", "error", err)
				continue
			}
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		req, minor, err := readRequest(br, conn)
		if err != nil {
			return // idle timeout or peer closed: end the connection quietly
		}
		_ = conn.SetReadDeadline(time.Time{})

		w := &responseWriter{conn: conn, header: NewHeader(), threshold: s.ChunkThreshold}
		handler := s.Handler
		if handler == nil {
			handler = http.NotFoundHandler()
		}
		handler.ServeHTTP(w, req)
		if err := w.flush(minor); err != nil {
			return
		}
		if !KeepAlive(minor, responseHeaderView(w)) || !KeepAlive(minor, requestHeaderView(req)) {
			return
		}
	}
}

func requestHeaderView(req *http.Request) *Header {
	h := NewHeader()
	if v := req.Header.Get("Connection"); v != "" {
		h.Set("Connection", v)
	}
	return h
}

func responseHeaderView(w *responseWriter) *Header {
	h := NewHeader()
	if v := w.Header().Get("Connection"); v != "" {
		h.Set("Connection", v)
	}
	return h
}

func readRequest(br *bufio.Reader, conn net.Conn) (*http.Request, int, error) {
	startLine, h, err := ParseHeaderBlock(br)
	if err != nil {
		return nil, 0, err
	}
	parts := strings.Fields(startLine)
	if len(parts) != 3 {
		return nil, 0, fmt.Errorf("%w: bad request line %q", ErrParse, startLine)
	}
	method, target, proto := parts[0], parts[1], parts[2]
	minor := 1
	if proto == "HTTP/1.0" {
		minor = 0
	}
	body, err := ReadBody(br, h)
	if err != nil {
		return nil, minor, err
	}
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, minor, fmt.Errorf("%w: bad request target %q", ErrParse, target)
	}
	req, err := http.NewRequest(method, u.String(), nopReader(body))
	if err != nil {
		return nil, minor, err
	}
	for _, name := range h.Names() {
		v, _ := h.Get(name)
		req.Header.Set(name, v)
	}
	req.ContentLength = int64(len(body))
	req.RemoteAddr = conn.RemoteAddr().String()
	return req, minor, nil
}

// responseWriter buffers status/header/body and serializes them with the
// chunked/Content-Length rule on flush, rather than streaming bytes out as
// Write is called — UPnP response bodies (descriptions, SOAP envelopes,
// SCPD) are always fully built in memory first, so this keeps the codec
// symmetric with WriteBody.
type responseWriter struct {
	conn      net.Conn
	header    http.Header
	status    int
	body      []byte
	wroteHead bool
	threshold int
}

func (w *responseWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHead {
		w.WriteHeader(http.StatusOK)
	}
	w.body = append(w.body, b...)
	return len(b), nil
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHead {
		return
	}
	w.status = status
	w.wroteHead = true
}

func (w *responseWriter) flush(minor int) error {
	if !w.wroteHead {
		w.WriteHeader(http.StatusOK)
	}
	h := NewHeader()
	for k, v := range w.header {
		if len(v) > 0 {
			h.Set(k, v[0])
		}
	}
	proto := "HTTP/1.1"
	if minor == 0 {
		proto = "HTTP/1.0"
	}
	if _, err := fmt.Fprintf(w.conn, "%s %d %s\r\n", proto, w.status, http.StatusText(w.status)); err != nil {
		return err
	}
	chunked := frameHeader(h, w.body, w.threshold)
	if _, err := w.conn.Write([]byte(h.Encode() + "\r\n")); err != nil {
		return err
	}
	if chunked {
		return writeChunked(w.conn, w.body, DefaultChunkSize)
	}
	_, err := w.conn.Write(w.body)
	return err
}

// frameHeader sets Content-Length or Transfer-Encoding on h for the given
// body, reporting whether the body must then be written chunked.
func frameHeader(h *Header, body []byte, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultChunkThreshold
	}
	if len(body) > threshold {
		h.Set("Transfer-Encoding", "chunked")
		h.Del("Content-Length")
		return true
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Del("Transfer-Encoding")
	return false
}

func nopReader(b []byte) *byteReader { return &byteReader{b: b} }

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
func (r *byteReader) Close() error { return nil }

// StatusCodeToReason renders a reason phrase, falling back to "Unknown"
// for vendor/extension codes http.StatusText doesn't know.
func StatusCodeToReason(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "Unknown " + strconv.Itoa(code)
}
