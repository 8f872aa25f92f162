package upnptype_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/upnptype"
)

var _ = Describe("UDN", func() {
	It("round-trips every valid UDN string", func() {
		for _, s := range []string{
			"uuid:5d724fc2-5c5e-4760-a123-f04a9136b300",
			"uuid:RINCON_000E5842ABCD01400",
		} {
			u := upnptype.ParseUDN(s)
			Expect(u.IsValid()).To(BeTrue())
			Expect(u.String()).To(Equal(s))
		}
	})

	It("marks malformed input invalid and non-equal to itself", func() {
		a := upnptype.ParseUDN("not-a-udn")
		b := upnptype.ParseUDN("not-a-udn")
		Expect(a.IsValid()).To(BeFalse())
		Expect(a.Equal(b)).To(BeFalse())
	})
})

var _ = Describe("ResourceType", func() {
	It("round-trips a standard device type", func() {
		s := "urn:schemas-upnp-org:device:MediaServer:1"
		rt := upnptype.ParseResourceType(s)
		Expect(rt.IsValid()).To(BeTrue())
		Expect(rt.String()).To(Equal(s))
		Expect(rt.IsStandard()).To(BeTrue())
	})

	It("normalizes dotted vendor domains to hyphenated wire form", func() {
		rt := upnptype.NewResourceType("schemas.my.com", upnptype.KindService, "Foo", 2)
		Expect(rt.String()).To(Equal("urn:schemas-my-com:service:Foo:2"))
		Expect(rt.IsStandard()).To(BeFalse())
	})

	It("rejects a non-numeric version", func() {
		rt := upnptype.ParseResourceType("urn:schemas-upnp-org:device:MediaServer:x")
		Expect(rt.IsValid()).To(BeFalse())
	})

	It("matches inclusively per spec.md §4.1 compare(type, match-mode)", func() {
		v1 := upnptype.ParseResourceType("urn:schemas-upnp-org:service:ContentDirectory:1")
		v2 := upnptype.ParseResourceType("urn:schemas-upnp-org:service:ContentDirectory:2")
		Expect(v1.Matches(v2, upnptype.VersionInclusive)).To(BeTrue())
		Expect(v2.Matches(v1, upnptype.VersionInclusive)).To(BeFalse())
		Expect(v1.Matches(v1, upnptype.VersionExact)).To(BeTrue())
		Expect(v1.Matches(v2, upnptype.VersionExact)).To(BeFalse())
	})
})

var _ = Describe("USN", func() {
	It("round-trips a root-device USN", func() {
		s := "uuid:5d724fc2-5c5e-4760-a123-f04a9136b300::upnp:rootdevice"
		usn := upnptype.ParseUSN(s)
		Expect(usn.IsValid()).To(BeTrue())
		Expect(usn.String()).To(Equal(s))
		rid, ok := usn.ResourceIdentifier()
		Expect(ok).To(BeTrue())
		Expect(rid.Kind()).To(Equal(upnptype.ResourceRootDevice))
	})

	It("round-trips a bare-UDN USN", func() {
		s := "uuid:5d724fc2-5c5e-4760-a123-f04a9136b300"
		usn := upnptype.ParseUSN(s)
		Expect(usn.IsValid()).To(BeTrue())
		Expect(usn.String()).To(Equal(s))
		_, ok := usn.ResourceIdentifier()
		Expect(ok).To(BeFalse())
	})

	It("round-trips a ResourceType-carrying USN", func() {
		s := "uuid:5d724fc2-5c5e-4760-a123-f04a9136b300::urn:schemas-upnp-org:service:ContentDirectory:1"
		usn := upnptype.ParseUSN(s)
		Expect(usn.IsValid()).To(BeTrue())
		Expect(usn.String()).To(Equal(s))
	})
})

var _ = Describe("Timeout", func() {
	It("round-trips Second-N and Second-infinite", func() {
		Expect(upnptype.ParseTimeout("Second-1800").String()).To(Equal("Second-1800"))
		Expect(upnptype.ParseTimeout("Second-infinite").String()).To(Equal("Second-infinite"))
	})
})

var _ = Describe("Sid", func() {
	It("mints uuid-prefixed, mutually distinct ids", func() {
		a := upnptype.NewSid()
		b := upnptype.NewSid()
		Expect(a.IsValid()).To(BeTrue())
		Expect(a.Equal(b)).To(BeFalse())
	})
})
