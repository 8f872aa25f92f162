package soap_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/soap"
)

var _ = Describe("EncodeValue/DecodeValue", func() {
	DescribeTable("encodes to canonical wire form",
		func(dt devicemodel.DataType, in, want string) {
			got, err := soap.EncodeValue(dt, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("boolean true variants to 1", devicemodel.TypeBoolean, "true", "1"),
		Entry("boolean false variants to 0", devicemodel.TypeBoolean, "no", "0"),
		Entry("boolean empty defaults to 0", devicemodel.TypeBoolean, "", "0"),
		Entry("base64 binary", devicemodel.TypeBinBase64, "hi", "aGk="),
		Entry("integer passes through", devicemodel.TypeI4, "42", "42"),
		Entry("string passes through", devicemodel.TypeString, "hello", "hello"),
	)

	It("rejects an unrecognized boolean value", func() {
		_, err := soap.EncodeValue(devicemodel.TypeBoolean, "maybe")
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("decodes and validates canonical wire form",
		func(dt devicemodel.DataType, wire, want string) {
			got, err := soap.DecodeValue(dt, wire)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("boolean 1", devicemodel.TypeBoolean, "1", "1"),
		Entry("boolean 0", devicemodel.TypeBoolean, "0", "0"),
		Entry("signed integer", devicemodel.TypeI4, "-7", "-7"),
		Entry("unsigned integer", devicemodel.TypeUI4, "7", "7"),
		Entry("float", devicemodel.TypeR4, "3.25", "3.25"),
		Entry("base64 round trip", devicemodel.TypeBinBase64, "aGk=", "hi"),
		Entry("string passes through unchanged", devicemodel.TypeString, "hello world", "hello world"),
		Entry("date passes through unchanged", devicemodel.TypeDateTime, "2026-07-30T00:00:00", "2026-07-30T00:00:00"),
	)

	It("rejects a malformed integer", func() {
		_, err := soap.DecodeValue(devicemodel.TypeI4, "not-a-number")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a negative value for an unsigned type", func() {
		_, err := soap.DecodeValue(devicemodel.TypeUI4, "-1")
		Expect(err).To(HaveOccurred())
	})

	It("rejects invalid base64", func() {
		_, err := soap.DecodeValue(devicemodel.TypeBinBase64, "not valid base64!")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("DecodeAction", func() {
	It("returns an error for a body with no elements", func() {
		_, err := soap.DecodeAction([]byte(""))
		Expect(err).To(HaveOccurred())
	})

	It("handles an action with no arguments", func() {
		elem, err := soap.DecodeAction([]byte(`<u:Stop xmlns:u="urn:x"></u:Stop>`))
		Expect(err).NotTo(HaveOccurred())
		Expect(elem.Name).To(Equal("Stop"))
		Expect(elem.Args).To(BeEmpty())
	})
})
