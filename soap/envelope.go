// Package soap implements SOAP 1.1 action invocation (spec.md §4.5-§4.6):
// envelope construction/parsing, per-datatype canonical argument encoding,
// a client invocation facade with per-service serialization and location
// rotation, and server-side action dispatch with UDA 1.1 fault codes.
package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	encodingStyle = "http://schemas.xmlsoap.org/soap/encoding/"
	controlNS   = "urn:schemas-upnp-org:control-1-0"
)

// envelope and body mirror the teacher's SOAPEnvelope/SOAPBody shape
// (server/dlna/control.go), generalized to carry arbitrary inner XML
// rather than a single hardcoded action type.
type envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    body     `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type body struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
	Content []byte   `xml:",innerxml"`
}

type faultEnvelope struct {
	XMLName xml.Name  `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    faultBody `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type faultBody struct {
	Fault soapFault `xml:"Fault"`
}

type soapFault struct {
	FaultCode   string     `xml:"faultcode"`
	FaultString string     `xml:"faultstring"`
	Detail      faultDetail `xml:"detail"`
}

type faultDetail struct {
	UPnPError upnpErrorXML `xml:"UPnPError"`
}

type upnpErrorXML struct {
	XMLName          xml.Name `xml:"urn:schemas-upnp-org:control-1-0 UPnPError"`
	ErrorCode        int      `xml:"errorCode"`
	ErrorDescription string   `xml:"errorDescription"`
}

// Fault is the parsed/constructed content of a SOAP 1.1 fault carrying a
// UPnPError detail (spec.md §4.5 error codes table).
type Fault struct {
	ErrorCode        int
	ErrorDescription string
}

// Error satisfies the error interface so a Fault can be returned directly
// from client Invoke calls.
func (f Fault) Error() string {
	return fmt.Sprintf("soap: fault %d: %s", f.ErrorCode, f.ErrorDescription)
}

// Well-known UPnP error codes (spec.md §4.5).
const (
	ErrInvalidAction            = 401
	ErrInvalidArgs              = 402
	ErrActionFailed             = 501
	ErrArgumentValueInvalid     = 600
	ErrArgumentValueOutOfRange  = 601
	ErrOptionalActionNotImpl    = 602
	ErrOutOfMemory              = 603
	ErrHumanInterventionRequired = 604
	ErrStringArgumentTooLong    = 605
)

// EncodeRequest builds a SOAP 1.1 request envelope whose body is
// <u:ActionName xmlns:u="serviceType">...</u:ActionName>, per spec.md §4.5.
func EncodeRequest(serviceType, action string, args []EncodedArg) []byte {
	var inner bytes.Buffer
	fmt.Fprintf(&inner, `<u:%s xmlns:u=%q>`, action, serviceType)
	for _, a := range args {
		fmt.Fprintf(&inner, "<%s>%s</%s>", a.Name, xmlEscape(a.Value), a.Name)
	}
	fmt.Fprintf(&inner, "</u:%s>", action)

	var out bytes.Buffer
	fmt.Fprintf(&out, `<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&out, `<s:Envelope xmlns:s=%q s:encodingStyle=%q><s:Body>%s</s:Body></s:Envelope>`,
		envelopeNS, encodingStyle, inner.String())
	return out.Bytes()
}

// EncodeResponse builds a SOAP 1.1 response envelope whose body is
// <u:ActionNameResponse xmlns:u="serviceType">...</u:ActionNameResponse>.
func EncodeResponse(serviceType, action string, args []EncodedArg) []byte {
	var inner bytes.Buffer
	respName := action + "Response"
	fmt.Fprintf(&inner, `<u:%s xmlns:u=%q>`, respName, serviceType)
	for _, a := range args {
		fmt.Fprintf(&inner, "<%s>%s</%s>", a.Name, xmlEscape(a.Value), a.Name)
	}
	fmt.Fprintf(&inner, "</u:%s>", respName)

	var out bytes.Buffer
	fmt.Fprintf(&out, `<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&out, `<s:Envelope xmlns:s=%q s:encodingStyle=%q><s:Body>%s</s:Body></s:Envelope>`,
		envelopeNS, encodingStyle, inner.String())
	return out.Bytes()
}

// EncodeFault builds a SOAP 1.1 fault envelope carrying a UPnPError detail,
// mirroring the teacher's writeSOAPFault template (server/dlna/control.go).
func EncodeFault(f Fault) []byte {
	var out bytes.Buffer
	fmt.Fprintf(&out, `<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&out, `<s:Envelope xmlns:s=%q s:encodingStyle=%q><s:Body><s:Fault>`+
		`<faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring>`+
		`<detail><UPnPError xmlns=%q><errorCode>%d</errorCode>`+
		`<errorDescription>%s</errorDescription></UPnPError></detail>`+
		`</s:Fault></s:Body></s:Envelope>`,
		envelopeNS, encodingStyle, controlNS, f.ErrorCode, xmlEscape(f.ErrorDescription))
	return out.Bytes()
}

// EncodedArg is one already-canonicalized SOAP argument element.
type EncodedArg struct {
	Name  string
	Value string
}

// ParseBody extracts the raw inner-XML body content from any SOAP
// envelope (request or response), without assuming the action name.
func ParseBody(data []byte) ([]byte, error) {
	var env envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("soap: malformed envelope: %w", err)
	}
	return env.Body.Content, nil
}

// ParseFault extracts the UPnPError detail from a fault envelope. ok is
// false if data does not contain a recognizable fault.
func ParseFault(data []byte) (Fault, bool) {
	var env faultEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return Fault{}, false
	}
	if env.Body.Fault.Detail.UPnPError.ErrorCode == 0 {
		return Fault{}, false
	}
	return Fault{
		ErrorCode:        env.Body.Fault.Detail.UPnPError.ErrorCode,
		ErrorDescription: env.Body.Fault.Detail.UPnPError.ErrorDescription,
	}, true
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
