package gena_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/gena"
)

var _ = Describe("Client (public API)", func() {
	It("starts in the Unsubscribed state", func() {
		c := gena.NewClient("http://dev/evt", "http://cp/cb", nil)
		Expect(c.State()).To(Equal(gena.StateUnsubscribed))
	})

	It("reports each State as a distinct readable string", func() {
		Expect(gena.StateActive.String()).To(Equal("active"))
		Expect(gena.StateFailed.String()).To(Equal("failed"))
	})
})
