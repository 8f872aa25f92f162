package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/description"
	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/gena"
	"github.com/upnpda/upnpda/soap"
)

const wiringRoot = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:BinaryLight:1</deviceType>
    <friendlyName>Test Light</friendlyName>
    <manufacturer>Acme</manufacturer>
    <modelName>Box</modelName>
    <UDN>uuid:5d724fc2-5c5e-4760-a123-f04a9136b300</UDN>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:SwitchPower:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:SwitchPower</serviceId>
        <SCPDURL>/SwitchPower.xml</SCPDURL>
        <controlURL>/ctl/SwitchPower</controlURL>
        <eventSubURL>/evt/SwitchPower</eventSubURL>
      </service>
    </serviceList>
  </device>
</root>`

const wiringSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>GetTarget</name>
      <argumentList>
        <argument><name>RetTargetValue</name><direction>out</direction><retval/><relatedStateVariable>Target</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="yes">
      <name>Target</name>
      <dataType>boolean</dataType>
      <defaultValue>0</defaultValue>
    </stateVariable>
  </serviceStateTable>
</scpd>`

// buildTestDevice parses the fixture description/SCPD, assigns URLs and
// targets the way Start does, and mounts it on a fresh router — this is
// the HTTP-serving half of Start without the TCP listener or SSDP socket,
// so these tests exercise routing and dispatch without real networking.
func buildTestDevice(baseURL string, handlers ActionHandlers) (*loadedDevice, chi.Router) {
	tree, err := description.ParseRoot([]byte(wiringRoot), description.Strict, nil)
	Expect(err).NotTo(HaveOccurred())
	svc := tree.Root.Services[0]
	Expect(description.ParseSCPD([]byte(wiringSCPD), description.Strict, svc)).To(Succeed())
	if v, ok := svc.StateVariableByName("Target"); ok {
		v.SetCurrentValue("1")
	}

	cfg := DeviceConfig{
		Description: []byte(wiringRoot),
		SCPDs:       map[string][]byte{svc.ServiceID: []byte(wiringSCPD)},
		Services:    map[string]ServiceConstructor{svc.ServiceID: func(*devicemodel.Service) ActionHandlers { return handlers }},
	}
	d := &loadedDevice{tree: tree, cfg: cfg, genaReg: gena.NewRegistry("test/1.0"), prefix: "/dev0"}
	assignURLs(d.tree, baseURL, d.prefix)
	d.targets = buildTargets(d.tree)

	router := chi.NewRouter()
	mountDevice(router, d)
	return d, router
}

var _ = Describe("device HTTP wiring", func() {
	It("serves the root description at its assigned path", func() {
		_, router := buildTestDevice("http://127.0.0.1:1900", nil)
		srv := httptest.NewServer(router)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/dev0/device.xml")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("serves a service's SCPD at its assigned path", func() {
		d, router := buildTestDevice("http://127.0.0.1:1900", nil)
		srv := httptest.NewServer(router)
		defer srv.Close()

		svc := d.tree.Root.Services[0]
		resp, err := http.Get(srv.URL + strings.TrimPrefix(svc.SCPDURL, "http://127.0.0.1:1900"))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("dispatches a SOAP action at the assigned control URL", func() {
		called := false
		handlers := ActionHandlers{"GetTarget": func(ctx context.Context, in map[string]string) (map[string]string, error) {
			called = true
			return map[string]string{"RetTargetValue": "1"}, nil
		}}
		d, router := buildTestDevice("http://127.0.0.1:1900", handlers)
		srv := httptest.NewServer(router)
		defer srv.Close()

		svc := d.tree.Root.Services[0]
		client := soap.NewClient(svc)
		client.Locations = []string{srv.URL + strings.TrimPrefix(svc.ControlURL, "http://127.0.0.1:1900")}
		out, err := client.Invoke(context.Background(), "GetTarget", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(called).To(BeTrue())
		Expect(out["RetTargetValue"]).To(Equal("1"))
	})

	It("answers SUBSCRIBE at the assigned event-sub URL", func() {
		d, router := buildTestDevice("http://127.0.0.1:1900", nil)
		srv := httptest.NewServer(router)
		defer srv.Close()

		svc := d.tree.Root.Services[0]
		req, err := http.NewRequest("SUBSCRIBE", srv.URL+strings.TrimPrefix(svc.EventSubURL, "http://127.0.0.1:1900"), nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("CALLBACK", "<http://127.0.0.1:9/cb>")
		req.Header.Set("NT", "upnp:event")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("SID")).NotTo(BeEmpty())
	})

	It("returns 404 for an unmounted path", func() {
		_, router := buildTestDevice("http://127.0.0.1:1900", nil)
		srv := httptest.NewServer(router)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/dev0/nope.xml")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})

var _ = Describe("buildTargets", func() {
	It("includes a rootdevice, a UDN, and a device-type target for the root, plus one per service", func() {
		tree, err := description.ParseRoot([]byte(wiringRoot), description.Strict, nil)
		Expect(err).NotTo(HaveOccurred())
		svc := tree.Root.Services[0]
		Expect(description.ParseSCPD([]byte(wiringSCPD), description.Strict, svc)).To(Succeed())

		targets := buildTargets(tree)
		Expect(targets).To(HaveLen(4)) // rootdevice + UDN + deviceType + 1 service
	})
})
