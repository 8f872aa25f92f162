// Package description parses UPnP root device description documents and
// SCPD (service control protocol description) documents — spec.md §4.4.
// Parsing is two-phase: ParseRoot yields a device tree with service
// *stubs* (URLs and identifiers only); ParseSCPD, invoked once per stub by
// the caller, fills in the state-variable table and action table.
package description

import "encoding/xml"

// rootXML mirrors <root xmlns="urn:schemas-upnp-org:device-1-0">.
type rootXML struct {
	XMLName    xml.Name  `xml:"root"`
	SpecVer    specVerXML `xml:"specVersion"`
	Device     deviceXML `xml:"device"`
}

type specVerXML struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type deviceXML struct {
	DeviceType       string        `xml:"deviceType"`
	FriendlyName     string        `xml:"friendlyName"`
	Manufacturer     string        `xml:"manufacturer"`
	ManufacturerURL  string        `xml:"manufacturerURL"`
	ModelDescription string        `xml:"modelDescription"`
	ModelName        string        `xml:"modelName"`
	ModelNumber      string        `xml:"modelNumber"`
	ModelURL         string        `xml:"modelURL"`
	SerialNumber     string        `xml:"serialNumber"`
	UDN              string        `xml:"UDN"`
	UPC              string        `xml:"UPC"`
	PresentationURL  *string       `xml:"presentationURL"`
	IconList         []iconXML     `xml:"iconList>icon"`
	ServiceList      []serviceXML  `xml:"serviceList>service"`
	DeviceList       []deviceXML   `xml:"deviceList>device"`
}

type iconXML struct {
	Mimetype string `xml:"mimetype"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	Depth    int    `xml:"depth"`
	URL      string `xml:"url"`
}

type serviceXML struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

// scpdXML mirrors <scpd xmlns="urn:schemas-upnp-org:service-1-0">.
type scpdXML struct {
	XMLName     xml.Name         `xml:"scpd"`
	ActionList  []actionXML      `xml:"actionList>action"`
	StateTable  []stateVarXML    `xml:"serviceStateTable>stateVariable"`
}

type actionXML struct {
	Name      string          `xml:"name"`
	Arguments []argumentXML   `xml:"argumentList>argument"`
}

type argumentXML struct {
	Name               string `xml:"name"`
	Direction          string `xml:"direction"`
	RelatedStateVar    string `xml:"relatedStateVariable"`
	Retval             *struct{} `xml:"retval"`
}

type stateVarXML struct {
	SendEvents   string        `xml:"sendEvents,attr"`
	Name         string        `xml:"name"`
	DataType     string        `xml:"dataType"`
	DefaultValue string        `xml:"defaultValue"`
	AllowedList  []string      `xml:"allowedValueList>allowedValue"`
	AllowedRange *allowedRange `xml:"allowedValueRange"`
}

type allowedRange struct {
	Minimum string `xml:"minimum"`
	Maximum string `xml:"maximum"`
	Step    string `xml:"step"`
}
