// Package gena implements UPnP GENA eventing (spec.md §4.7): the server
// subscription registry and NOTIFY sender, and the client subscription
// state machine.
package gena

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const propertysetNS = "urn:schemas-upnp-org:event-1-0"

// PropertyChange is one evented state variable's new value.
type PropertyChange struct {
	Name  string
	Value string
}

type propertysetXML struct {
	XMLName    xml.Name      `xml:"urn:schemas-upnp-org:event-1-0 propertyset"`
	Properties []propertyXML `xml:"property"`
}

type propertyXML struct {
	Inner []byte `xml:",innerxml"`
}

// EncodeNotifyBody renders the `<e:propertyset>` body of a NOTIFY request,
// one `<e:property><name>value</name></e:property>` per changed variable,
// per spec.md §4.7.
func EncodeNotifyBody(changes []PropertyChange) []byte {
	var inner bytes.Buffer
	for _, c := range changes {
		fmt.Fprintf(&inner, "<e:property><%s>%s</%s></e:property>", c.Name, xmlEscape(c.Value), c.Name)
	}
	var out bytes.Buffer
	fmt.Fprintf(&out, `<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&out, `<e:propertyset xmlns:e=%q>%s</e:propertyset>`, propertysetNS, inner.String())
	return out.Bytes()
}

// ParseNotifyBody decodes a NOTIFY request body back into its property
// changes.
func ParseNotifyBody(body []byte) ([]PropertyChange, error) {
	var ps propertysetXML
	if err := xml.Unmarshal(body, &ps); err != nil {
		return nil, fmt.Errorf("gena: malformed propertyset: %w", err)
	}
	var out []PropertyChange
	for _, p := range ps.Properties {
		name, value, err := decodeOneProperty(p.Inner)
		if err != nil {
			return nil, err
		}
		out = append(out, PropertyChange{Name: name, Value: value})
	}
	return out, nil
}

// decodeOneProperty extracts the single <name>value</name> child of one
// <e:property> element without needing to know the variable name ahead
// of time.
func decodeOneProperty(inner []byte) (name, value string, err error) {
	dec := xml.NewDecoder(bytes.NewReader(inner))
	for {
		tok, terr := dec.Token()
		if terr != nil {
			return "", "", fmt.Errorf("gena: malformed property: %w", terr)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		name = se.Name.Local
		var chardata string
		for {
			inner, terr := dec.Token()
			if terr != nil {
				return "", "", fmt.Errorf("gena: malformed property %q: %w", name, terr)
			}
			switch t := inner.(type) {
			case xml.CharData:
				chardata += string(t)
			case xml.EndElement:
				return name, chardata, nil
			}
		}
	}
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
