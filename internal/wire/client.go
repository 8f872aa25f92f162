package wire

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client issues one-shot HTTP/1.1 requests over a fresh TCP connection,
// used by the SOAP action-invocation path and the GENA NOTIFY sender —
// both call a single URL and read a single response, never needing
// net/http's connection pooling or redirect handling.
type Client struct {
	DialTimeout  time.Duration // 0 = 5s
	ReadTimeout  time.Duration // 0 = 30s
	ChunkThreshold int
}

// Do sends req and returns the parsed response. The request body, if any,
// must already be fully buffered in req.Body via http.NoBody or a
// bytes.Reader-backed body; Client reads it to completion after dialing.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	dialTimeout := c.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	readTimeout := c.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	addr := req.URL.Host
	if req.URL.Port() == "" {
		addr = net.JoinHostPort(req.URL.Hostname(), "80")
	}
	var d net.Dialer
	d.Timeout = dialTimeout
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	var body []byte
	if req.Body != nil {
		buf := make([]byte, 0, 4096)
		tmp := make([]byte, 4096)
		for {
			n, rerr := req.Body.Read(tmp)
			buf = append(buf, tmp[:n]...)
			if rerr != nil {
				break
			}
		}
		body = buf
	}

	h := NewHeader()
	for name, vals := range req.Header {
		if len(vals) > 0 {
			h.Set(name, vals[0])
		}
	}
	if !h.Has("Host") {
		h.Set("Host", req.URL.Host)
	}
	chunked := frameHeader(h, body, c.ChunkThreshold)
	if !h.Has("Connection") {
		h.Set("Connection", "close")
	}

	target := req.URL.RequestURI()
	_ = conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	if _, err := fmt.Fprintf(conn, "%s %s HTTP/1.1\r\n", req.Method, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := conn.Write([]byte(h.Encode() + "\r\n")); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if chunked {
		if err := writeChunked(conn, body, DefaultChunkSize); err != nil {
			return nil, err
		}
	} else if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	br := bufio.NewReader(conn)
	statusLine, rh, err := ParseHeaderBlock(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: bad status line %q", ErrParse, statusLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad status code %q", ErrParse, parts[1])
	}
	respBody, err := ReadBody(br, rh)
	if err != nil {
		return nil, err
	}

	hdr := http.Header{}
	for _, name := range rh.Names() {
		v, _ := rh.Get(name)
		hdr.Set(name, v)
	}
	resp := &http.Response{
		StatusCode: code,
		Status:     statusLine,
		Proto:      parts[0],
		Header:     hdr,
		Body:       nopReader(respBody),
		Request:    req,
		ContentLength: int64(len(respBody)),
	}
	return resp, nil
}
