package soap_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/soap"
)

var _ = Describe("envelope encode/parse round trip", func() {
	It("round-trips a request body through ParseBody and DecodeAction", func() {
		args := []soap.EncodedArg{{Name: "InstanceID", Value: "0"}, {Name: "Speed", Value: "1"}}
		wire := soap.EncodeRequest("urn:schemas-upnp-org:service:AVTransport:1", "Play", args)

		content, err := soap.ParseBody(wire)
		Expect(err).NotTo(HaveOccurred())

		elem, err := soap.DecodeAction(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(elem.Name).To(Equal("Play"))
		Expect(elem.Namespace).To(Equal("urn:schemas-upnp-org:service:AVTransport:1"))
		Expect(elem.Args).To(ConsistOf(
			soap.EncodedArg{Name: "InstanceID", Value: "0"},
			soap.EncodedArg{Name: "Speed", Value: "1"},
		))
	})

	It("round-trips a response body", func() {
		args := []soap.EncodedArg{{Name: "CurrentSpeed", Value: "1"}}
		wire := soap.EncodeResponse("urn:schemas-upnp-org:service:AVTransport:1", "GetTransportInfo", args)

		content, err := soap.ParseBody(wire)
		Expect(err).NotTo(HaveOccurred())
		elem, err := soap.DecodeAction(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(elem.Name).To(Equal("GetTransportInfoResponse"))
		Expect(elem.Args).To(ConsistOf(soap.EncodedArg{Name: "CurrentSpeed", Value: "1"}))
	})

	It("escapes reserved XML characters in argument values", func() {
		wire := soap.EncodeRequest("urn:x", "SetTitle", []soap.EncodedArg{{Name: "Title", Value: `<a & "b">`}})
		content, err := soap.ParseBody(wire)
		Expect(err).NotTo(HaveOccurred())
		elem, err := soap.DecodeAction(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(elem.Args[0].Value).To(Equal(`<a & "b">`))
	})

	It("encodes and parses a fault with a UPnPError detail", func() {
		wire := soap.EncodeFault(soap.Fault{ErrorCode: soap.ErrInvalidAction, ErrorDescription: "unknown action"})
		f, ok := soap.ParseFault(wire)
		Expect(ok).To(BeTrue())
		Expect(f.ErrorCode).To(Equal(soap.ErrInvalidAction))
		Expect(f.ErrorDescription).To(Equal("unknown action"))
	})

	It("reports ok=false for a non-fault envelope", func() {
		wire := soap.EncodeResponse("urn:x", "Foo", nil)
		_, ok := soap.ParseFault(wire)
		Expect(ok).To(BeFalse())
	})
})
