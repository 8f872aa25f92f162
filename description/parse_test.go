package description_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/description"
)

const minimalRoot = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaServer:1</deviceType>
    <friendlyName>Test Server</friendlyName>
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

const switchPowerSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>SetTarget</name>
      <argumentList>
        <argument><name>newTargetValue</name><direction>in</direction><relatedStateVariable>Target</relatedStateVariable></argument>
      </argumentList>
    </action>
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

var _ = Describe("ParseRoot", func() {
	It("parses a minimal valid root description", func() {
		tree, err := description.ParseRoot([]byte(minimalRoot), description.Strict, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(tree.Root.FriendlyName).To(Equal("Test Server"))
		Expect(tree.Root.UDN.IsValid()).To(BeTrue())
		Expect(tree.Root.Services).To(HaveLen(1))
	})

	It("rejects an unsupported specVersion", func() {
		bad := `<root xmlns="urn:schemas-upnp-org:device-1-0"><specVersion><major>2</major><minor>0</minor></specVersion><device><deviceType>urn:schemas-upnp-org:device:X:1</deviceType><friendlyName>a</friendlyName><manufacturer>a</manufacturer><modelName>a</modelName><UDN>uuid:x</UDN></device></root>`
		_, err := description.ParseRoot([]byte(bad), description.Strict, nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an empty presentationURL under strict parsing but accepts it under loose", func() {
		withPres := `<root xmlns="urn:schemas-upnp-org:device-1-0"><specVersion><major>1</major><minor>0</minor></specVersion><device><deviceType>urn:schemas-upnp-org:device:X:1</deviceType><friendlyName>a</friendlyName><manufacturer>a</manufacturer><modelName>a</modelName><UDN>uuid:5d724fc2-5c5e-4760-a123-f04a9136b300</UDN><presentationURL></presentationURL></device></root>`
		_, err := description.ParseRoot([]byte(withPres), description.Strict, nil)
		Expect(err).To(HaveOccurred())

		_, err = description.ParseRoot([]byte(withPres), description.Loose, nil)
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("ParseSCPD", func() {
	It("fills the state-variable and action tables and enforces argument ordering", func() {
		tree, err := description.ParseRoot([]byte(minimalRoot), description.Strict, nil)
		Expect(err).NotTo(HaveOccurred())
		svc := tree.Root.Services[0]

		err = description.ParseSCPD([]byte(switchPowerSCPD), description.Strict, svc)
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.StateVariables).To(HaveLen(1))
		Expect(svc.Actions).To(HaveLen(2))

		getTarget, ok := svc.ActionByName("GetTarget")
		Expect(ok).To(BeTrue())
		Expect(getTarget.OutArgs()).To(HaveLen(1))
		Expect(getTarget.OutArgs()[0].IsRetval).To(BeTrue())
	})

	It("rejects an action referencing an unknown state variable", func() {
		tree, _ := description.ParseRoot([]byte(minimalRoot), description.Strict, nil)
		svc := tree.Root.Services[0]
		bad := `<scpd xmlns="urn:schemas-upnp-org:service-1-0"><actionList><action><name>X</name><argumentList><argument><name>a</name><direction>in</direction><relatedStateVariable>Nope</relatedStateVariable></argument></argumentList></action></actionList><serviceStateTable></serviceStateTable></scpd>`
		err := description.ParseSCPD([]byte(bad), description.Strict, svc)
		Expect(err).To(HaveOccurred())
	})

	It("defaults step to 1 for an integer range when <step> is absent", func() {
		tree, _ := description.ParseRoot([]byte(minimalRoot), description.Strict, nil)
		svc := tree.Root.Services[0]
		scpd := `<scpd xmlns="urn:schemas-upnp-org:service-1-0"><actionList></actionList><serviceStateTable>
			<stateVariable sendEvents="no"><name>Volume</name><dataType>ui1</dataType><defaultValue>0</defaultValue>
				<allowedValueRange><minimum>0</minimum><maximum>100</maximum></allowedValueRange>
			</stateVariable>
		</serviceStateTable></scpd>`
		Expect(description.ParseSCPD([]byte(scpd), description.Strict, svc)).To(Succeed())

		v, ok := svc.StateVariableByName("Volume")
		Expect(ok).To(BeTrue())
		Expect(v.RangeStep).NotTo(BeNil())
		Expect(*v.RangeStep).To(Equal(1.0))
	})

	It("defaults step to max/10 for a sub-1 real-valued range", func() {
		tree, _ := description.ParseRoot([]byte(minimalRoot), description.Strict, nil)
		svc := tree.Root.Services[0]
		scpd := `<scpd xmlns="urn:schemas-upnp-org:service-1-0"><actionList></actionList><serviceStateTable>
			<stateVariable sendEvents="no"><name>Gain</name><dataType>r4</dataType><defaultValue>0</defaultValue>
				<allowedValueRange><minimum>0</minimum><maximum>0.5</maximum></allowedValueRange>
			</stateVariable>
		</serviceStateTable></scpd>`
		Expect(description.ParseSCPD([]byte(scpd), description.Strict, svc)).To(Succeed())

		v, ok := svc.StateVariableByName("Gain")
		Expect(ok).To(BeTrue())
		Expect(v.RangeStep).NotTo(BeNil())
		Expect(*v.RangeStep).To(Equal(0.05))
	})
})
