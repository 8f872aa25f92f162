package host_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/host"
)

const loadRoot = `<?xml version="1.0"?>
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

const loadSCPD = `<?xml version="1.0"?>
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

var _ = Describe("Host.Load", func() {
	It("accepts a well-formed device configuration", func() {
		h := host.New("test-host/1.0")
		err := h.Load(host.DeviceConfig{
			Description: []byte(loadRoot),
			SCPDs:       map[string][]byte{"urn:upnp-org:serviceId:SwitchPower": []byte(loadSCPD)},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a description with a malformed XML body", func() {
		h := host.New("test-host/1.0")
		err := h.Load(host.DeviceConfig{Description: []byte("not xml")})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a device config missing an SCPD for one of its services", func() {
		h := host.New("test-host/1.0")
		err := h.Load(host.DeviceConfig{Description: []byte(loadRoot), SCPDs: map[string][]byte{}})
		Expect(err).To(HaveOccurred())
	})
})
