package gena_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/gena"
	"github.com/upnpda/upnpda/upnptype"
)

// notifyCollector is a tiny HTTP server standing in for a control point's
// callback URL, recording every NOTIFY it receives.
type notifyCollector struct {
	mu    sync.Mutex
	calls []*http.Request
	body  [][]byte
}

func (n *notifyCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	n.mu.Lock()
	n.calls = append(n.calls, r)
	n.body = append(n.body, body)
	n.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (n *notifyCollector) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

var _ = Describe("Registry + Server SUBSCRIBE/UNSUBSCRIBE", func() {
	var (
		svc       *devicemodel.Service
		tree      *devicemodel.Tree
		registry  *gena.Registry
		server    *gena.Server
		callback  *notifyCollector
		cbServer  *httptest.Server
	)

	BeforeEach(func() {
		v := &devicemodel.StateVariable{Name: "Volume", DataType: devicemodel.TypeUI1, SendEvents: true}
		v.SetCurrentValue("10")
		svc = &devicemodel.Service{EventSubURL: "/evt/RenderingControl", StateVariables: []*devicemodel.StateVariable{v}}
		tree = &devicemodel.Tree{Root: &devicemodel.Device{Services: []*devicemodel.Service{svc}}}
		registry = gena.NewRegistry("test-server/1.0")
		server = gena.NewServer(tree, registry)

		callback = &notifyCollector{}
		cbServer = httptest.NewServer(callback)
	})

	AfterEach(func() {
		cbServer.Close()
	})

	subscribe := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("SUBSCRIBE", "/evt/RenderingControl", nil)
		req.Header.Set("CALLBACK", "<"+cbServer.URL+"/cb>")
		req.Header.Set("NT", "upnp:event")
		req.Header.Set("TIMEOUT", "Second-1800")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	It("mints a SID and responds 200 on a fresh SUBSCRIBE", func() {
		rec := subscribe()
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("SID")).NotTo(BeEmpty())
		Expect(rec.Header().Get("TIMEOUT")).NotTo(BeEmpty())
		Expect(rec.Header().Get("SERVER")).To(Equal("test-server/1.0"))
	})

	It("delivers an initial NOTIFY with every evented variable's current value", func() {
		subscribe()
		Eventually(callback.count).Should(Equal(1))
		changes, err := gena.ParseNotifyBody(callback.body[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(changes).To(ConsistOf(gena.PropertyChange{Name: "Volume", Value: "10"}))
		Expect(callback.calls[0].Header.Get("SEQ")).To(Equal("0"))
		Expect(callback.calls[0].Header.Get("NTS")).To(Equal("upnp:propchange"))
	})

	It("rejects a SUBSCRIBE carrying both SID and CALLBACK/NT", func() {
		req := httptest.NewRequest("SUBSCRIBE", "/evt/RenderingControl", nil)
		req.Header.Set("SID", "uuid:deadbeef-0000-0000-0000-000000000000")
		req.Header.Set("CALLBACK", "<http://x/cb>")
		req.Header.Set("NT", "upnp:event")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a renew naming an unknown SID with 412", func() {
		req := httptest.NewRequest("SUBSCRIBE", "/evt/RenderingControl", nil)
		req.Header.Set("SID", "uuid:00000000-0000-0000-0000-000000000000")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusPreconditionFailed))
	})

	It("renews an existing subscription by SID alone", func() {
		rec := subscribe()
		sid := rec.Header().Get("SID")

		renewReq := httptest.NewRequest("SUBSCRIBE", "/evt/RenderingControl", nil)
		renewReq.Header.Set("SID", sid)
		renewReq.Header.Set("TIMEOUT", "Second-600")
		renewRec := httptest.NewRecorder()
		server.ServeHTTP(renewRec, renewReq)
		Expect(renewRec.Code).To(Equal(http.StatusOK))
		Expect(renewRec.Header().Get("SID")).To(Equal(sid))
	})

	It("publishes subsequent events with incrementing SEQ starting at 1", func() {
		rec := subscribe()
		Eventually(callback.count).Should(Equal(1))

		registry.Publish(svc, []gena.PropertyChange{{Name: "Volume", Value: "20"}})
		Eventually(callback.count).Should(Equal(2))
		Expect(callback.calls[1].Header.Get("SEQ")).To(Equal("1"))
		_ = rec
	})

	It("unsubscribes and stops further delivery", func() {
		rec := subscribe()
		sid := rec.Header().Get("SID")
		Eventually(callback.count).Should(Equal(1))

		unsubReq := httptest.NewRequest("UNSUBSCRIBE", "/evt/RenderingControl", nil)
		unsubReq.Header.Set("SID", sid)
		unsubRec := httptest.NewRecorder()
		server.ServeHTTP(unsubRec, unsubReq)
		Expect(unsubRec.Code).To(Equal(http.StatusOK))

		Expect(registry.Unsubscribe(upnptype.ParseSid(sid))).To(HaveOccurred())
	})

	It("returns 404 for an unknown event subscription URL", func() {
		req := httptest.NewRequest("SUBSCRIBE", "/evt/nope", nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})
})
