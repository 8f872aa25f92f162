package wire_test

import (
	"bufio"
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/internal/wire"
)

var _ = Describe("body framing", func() {
	It("reads a Content-Length body", func() {
		h := wire.NewHeader()
		h.Set("Content-Length", "5")
		br := bufio.NewReader(strings.NewReader("hello" + "trailing garbage"))
		body, err := wire.ReadBody(br, h)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("hello"))
	})

	It("reads a chunked body and discards trailers", func() {
		h := wire.NewHeader()
		h.Set("Transfer-Encoding", "chunked")
		raw := "5\r\nhello\r\n6\r\n world\r\n0\r\nX-Trailer: ignored\r\n\r\n"
		br := bufio.NewReader(strings.NewReader(raw))
		body, err := wire.ReadBody(br, h)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("hello world"))
	})

	It("reads until close when neither framing header is present", func() {
		h := wire.NewHeader()
		br := bufio.NewReader(strings.NewReader("whatever is left"))
		body, err := wire.ReadBody(br, h)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("whatever is left"))
	})

	It("stays under Content-Length framing below the chunk threshold", func() {
		h := wire.NewHeader()
		var buf bytes.Buffer
		err := wire.WriteBody(&buf, h, []byte("small body"), 0)
		Expect(err).NotTo(HaveOccurred())
		cl, ok := h.Get("Content-Length")
		Expect(ok).To(BeTrue())
		Expect(cl).To(Equal("10"))
		Expect(h.Has("Transfer-Encoding")).To(BeFalse())
	})

	It("engages chunked encoding above the threshold and round-trips through ReadBody", func() {
		h := wire.NewHeader()
		payload := bytes.Repeat([]byte("x"), 200)
		var buf bytes.Buffer
		err := wire.WriteBody(&buf, h, payload, 100)
		Expect(err).NotTo(HaveOccurred())
		te, _ := h.Get("Transfer-Encoding")
		Expect(te).To(Equal("chunked"))

		br := bufio.NewReader(&buf)
		got, err := wire.ReadBody(br, h)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(payload))
	})

	DescribeTable("keep-alive defaults",
		func(minor int, connHeader string, want bool) {
			h := wire.NewHeader()
			if connHeader != "" {
				h.Set("Connection", connHeader)
			}
			Expect(wire.KeepAlive(minor, h)).To(Equal(want))
		},
		Entry("HTTP/1.1 defaults to keep-alive", 1, "", true),
		Entry("HTTP/1.0 defaults to close", 0, "", false),
		Entry("explicit close overrides 1.1 default", 1, "close", false),
		Entry("explicit keep-alive overrides 1.0 default", 0, "keep-alive", true),
	)
})
