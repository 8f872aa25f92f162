package soap

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/upnpda/upnpda/devicemodel"
)

// EncodeValue renders a value in the canonical wire form for dt (spec.md
// §4.5: "boolean as 0/1, ISO-8601 for dates/times, integers in base 10,
// base64 for binary").
func EncodeValue(dt devicemodel.DataType, value string) (string, error) {
	switch dt {
	case devicemodel.TypeBoolean:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes":
			return "1", nil
		case "0", "false", "no", "":
			return "0", nil
		default:
			return "", fmt.Errorf("soap: invalid boolean value %q", value)
		}
	case devicemodel.TypeBinBase64:
		return base64.StdEncoding.EncodeToString([]byte(value)), nil
	default:
		// Integers, strings, dates, and fixed-point types are already in
		// their canonical textual form once validated.
		return value, nil
	}
}

// DecodeValue converts a value received on the wire in dt's canonical form
// into the plain string representation devicemodel.StateVariable stores,
// validating against the datatype where that is meaningful.
func DecodeValue(dt devicemodel.DataType, wire string) (string, error) {
	switch dt {
	case devicemodel.TypeBoolean:
		switch wire {
		case "1", "true":
			return "1", nil
		case "0", "false":
			return "0", nil
		default:
			return "", fmt.Errorf("soap: invalid boolean value %q", wire)
		}
	case devicemodel.TypeI1, devicemodel.TypeI2, devicemodel.TypeI4:
		if _, err := strconv.ParseInt(wire, 10, 64); err != nil {
			return "", fmt.Errorf("soap: invalid integer value %q: %w", wire, err)
		}
		return wire, nil
	case devicemodel.TypeUI1, devicemodel.TypeUI2, devicemodel.TypeUI4:
		if _, err := strconv.ParseUint(wire, 10, 64); err != nil {
			return "", fmt.Errorf("soap: invalid unsigned integer value %q: %w", wire, err)
		}
		return wire, nil
	case devicemodel.TypeR4, devicemodel.TypeR8, devicemodel.TypeNumber, devicemodel.TypeFixed14_4:
		if _, err := strconv.ParseFloat(wire, 64); err != nil {
			return "", fmt.Errorf("soap: invalid numeric value %q: %w", wire, err)
		}
		return wire, nil
	case devicemodel.TypeBinBase64:
		raw, err := base64.StdEncoding.DecodeString(wire)
		if err != nil {
			return "", fmt.Errorf("soap: invalid base64 value: %w", err)
		}
		return string(raw), nil
	default:
		return wire, nil
	}
}

// ActionElement is the decoded <u:ActionName xmlns:u="..."> (or
// ActionNameResponse) element: its local name, the serviceType namespace,
// and its immediate child elements in document order.
type ActionElement struct {
	Name      string
	Namespace string
	Args      []EncodedArg
}

// DecodeAction parses the SOAP body's inner XML into an ActionElement,
// without assuming the action name in advance — the server dispatcher
// looks up the action by this parsed Name plus the SOAPACTION header.
func DecodeAction(bodyContent []byte) (ActionElement, error) {
	dec := xml.NewDecoder(strings.NewReader(string(bodyContent)))
	// Find the action's own start element.
	var actionTok xml.StartElement
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return ActionElement{}, fmt.Errorf("soap: no action element in body")
		}
		if err != nil {
			return ActionElement{}, fmt.Errorf("soap: malformed body: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			actionTok = se
			break
		}
	}

	var args []EncodedArg
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ActionElement{}, fmt.Errorf("soap: malformed body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			var chardata string
			depth := 0
			for {
				inner, err := dec.Token()
				if err != nil {
					return ActionElement{}, fmt.Errorf("soap: malformed argument %q: %w", name, err)
				}
				switch it := inner.(type) {
				case xml.CharData:
					chardata += string(it)
				case xml.StartElement:
					depth++
				case xml.EndElement:
					if depth == 0 {
						args = append(args, EncodedArg{Name: name, Value: chardata})
						goto nextArg
					}
					depth--
				}
			}
		nextArg:
		case xml.EndElement:
			if t.Name.Local == actionTok.Name.Local {
				return ActionElement{Name: actionTok.Name.Local, Namespace: actionTok.Name.Space, Args: args}, nil
			}
		}
	}
	return ActionElement{Name: actionTok.Name.Local, Namespace: actionTok.Name.Space, Args: args}, nil
}
