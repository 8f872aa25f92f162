package description

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/upnptype"
)

// Mode selects strict or loose parsing, spec.md §4.4's distinction for
// presentationURL emptiness and missing numeric range bounds.
type Mode int

const (
	Strict Mode = iota
	Loose
)

// MaxEmbeddedDepth bounds embedded-device recursion (SUPPLEMENTED per
// original_source/herqq/hupnp's hddoc_parser_p.cpp, which guards against a
// malformed or hostile description nesting devices without bound).
const MaxEmbeddedDepth = 16

const (
	maxFriendlyName = 64
	maxManufacturer = 64
	maxModelName    = 32
)

// ParseRoot parses a root device description document into a Tree whose
// services are stubs: URLs and identifiers only, with empty
// StateVariables/Actions. Call ParseSCPD once per stub's SCPDURL to
// complete the service.
func ParseRoot(data []byte, mode Mode, factory devicemodel.Factory) (*devicemodel.Tree, error) {
	if factory == nil {
		factory = devicemodel.DefaultFactory{}
	}
	var root rootXML
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("description: malformed root document: %w", err)
	}
	if root.SpecVer.Major != 1 || (root.SpecVer.Minor != 0 && root.SpecVer.Minor != 1) {
		return nil, fmt.Errorf("description: unsupported specVersion %d.%d", root.SpecVer.Major, root.SpecVer.Minor)
	}
	if root.Device.DeviceType == "" && root.Device.UDN == "" {
		return nil, fmt.Errorf("description: missing <device>")
	}

	var errs *multierror.Error
	dev := parseDevice(root.Device, mode, factory, 0, &errs)
	if errs.ErrorOrNil() != nil {
		return nil, errs.ErrorOrNil()
	}
	return &devicemodel.Tree{Root: dev}, nil
}

func parseDevice(dx deviceXML, mode Mode, factory devicemodel.Factory, depth int, errs **multierror.Error) *devicemodel.Device {
	if depth > MaxEmbeddedDepth {
		*errs = multierror.Append(*errs, fmt.Errorf("description: embedded-device nesting exceeds max depth %d", MaxEmbeddedDepth))
		return nil
	}

	dtype := upnptype.ParseResourceType(dx.DeviceType)
	if !dtype.IsValid() || dtype.Kind() != upnptype.KindDevice {
		*errs = multierror.Append(*errs, fmt.Errorf("description: invalid deviceType %q", dx.DeviceType))
	}
	udn := upnptype.ParseUDN(dx.UDN)
	if !udn.IsValid() {
		*errs = multierror.Append(*errs, fmt.Errorf("description: invalid UDN %q", dx.UDN))
	}
	if strings.TrimSpace(dx.FriendlyName) == "" {
		*errs = multierror.Append(*errs, fmt.Errorf("description: empty friendlyName"))
	} else if len(dx.FriendlyName) > maxFriendlyName {
		*errs = multierror.Append(*errs, fmt.Errorf("description: friendlyName %q exceeds %d chars (warning)", dx.FriendlyName, maxFriendlyName))
	}
	if strings.TrimSpace(dx.Manufacturer) == "" {
		*errs = multierror.Append(*errs, fmt.Errorf("description: empty manufacturer"))
	} else if len(dx.Manufacturer) > maxManufacturer {
		*errs = multierror.Append(*errs, fmt.Errorf("description: manufacturer %q exceeds %d chars (warning)", dx.Manufacturer, maxManufacturer))
	}
	if strings.TrimSpace(dx.ModelName) == "" {
		*errs = multierror.Append(*errs, fmt.Errorf("description: empty modelName"))
	} else if len(dx.ModelName) > maxModelName {
		*errs = multierror.Append(*errs, fmt.Errorf("description: modelName %q exceeds %d chars (warning)", dx.ModelName, maxModelName))
	}

	if dx.PresentationURL != nil && *dx.PresentationURL == "" && mode == Strict {
		*errs = multierror.Append(*errs, fmt.Errorf("description: empty <presentationURL> under strict parsing"))
	}

	dev := factory.MakeDevice(devicemodel.DeviceInfo{UDN: udn, DeviceType: dtype})
	dev.UDN = udn
	dev.DeviceType = dtype
	dev.FriendlyName = dx.FriendlyName
	dev.Manufacturer = dx.Manufacturer
	dev.ManufacturerURL = dx.ManufacturerURL
	dev.ModelDescription = dx.ModelDescription
	dev.ModelName = dx.ModelName
	dev.ModelNumber = dx.ModelNumber
	dev.ModelURL = dx.ModelURL
	dev.SerialNumber = dx.SerialNumber
	dev.UPC = dx.UPC
	if dx.PresentationURL != nil {
		dev.PresentationURL = *dx.PresentationURL
	}
	for _, ix := range dx.IconList {
		dev.Icons = append(dev.Icons, devicemodel.Icon{
			Mimetype: ix.Mimetype, Width: ix.Width, Height: ix.Height, Depth: ix.Depth, URL: ix.URL,
		})
	}
	for _, sx := range dx.ServiceList {
		stype := upnptype.ParseResourceType(sx.ServiceType)
		if !stype.IsValid() || stype.Kind() != upnptype.KindService {
			*errs = multierror.Append(*errs, fmt.Errorf("description: invalid serviceType %q", sx.ServiceType))
			continue
		}
		svc := factory.MakeService(stype)
		svc.ServiceType = stype
		svc.ServiceID = sx.ServiceID
		svc.SCPDURL = sx.SCPDURL
		svc.ControlURL = sx.ControlURL
		svc.EventSubURL = sx.EventSubURL
		dev.Services = append(dev.Services, svc)
	}
	for _, ex := range dx.DeviceList {
		if embedded := parseDevice(ex, mode, factory, depth+1, errs); embedded != nil {
			dev.Embedded = append(dev.Embedded, embedded)
		}
	}
	return dev
}

// ParseSCPD parses a service's state-variable and action tables, filling
// svc in place (spec.md §4.4 "second pass").
func ParseSCPD(data []byte, mode Mode, svc *devicemodel.Service) error {
	var doc scpdXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("description: malformed SCPD document: %w", err)
	}

	var errs *multierror.Error
	for _, svx := range doc.StateTable {
		v, err := parseStateVariable(svx, mode)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		svc.StateVariables = append(svc.StateVariables, v)
	}
	if errs.ErrorOrNil() != nil {
		return errs.ErrorOrNil()
	}

	for _, ax := range doc.ActionList {
		action, err := parseAction(ax, svc)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		svc.Actions = append(svc.Actions, action)
	}
	return errs.ErrorOrNil()
}

// defaultStep computes the UDA default <step> for a numeric state
// variable whose description omits one (spec.md §3): integer types
// default to 1; real-valued types default to 1.0, or to max/10 when max
// is itself smaller than 1 (so the default step never exceeds the range).
func defaultStep(dt devicemodel.DataType, max float64) *float64 {
	var step float64
	switch {
	case dt.IsInteger():
		step = 1
	case max < 1:
		step = max / 10
	default:
		step = 1.0
	}
	return &step
}

func parseStateVariable(svx stateVarXML, mode Mode) (*devicemodel.StateVariable, error) {
	dt := devicemodel.DataType(svx.DataType)
	v := &devicemodel.StateVariable{
		Name:         svx.Name,
		DataType:     dt,
		SendEvents:   strings.EqualFold(svx.SendEvents, "yes"),
		DefaultValue: svx.DefaultValue,
	}
	if svx.AllowedList != nil {
		v.AllowedList = svx.AllowedList
	}
	if dt.IsNumeric() {
		if svx.AllowedRange == nil {
			if mode == Strict {
				return nil, fmt.Errorf("description: state variable %q (%s) missing allowedValueRange under strict parsing", svx.Name, dt)
			}
			// Loose: default to the full range (±infinity conceptually;
			// represented here as nil bounds, meaning "unbounded").
			return v, nil
		}
		min, err1 := strconv.ParseFloat(svx.AllowedRange.Minimum, 64)
		max, err2 := strconv.ParseFloat(svx.AllowedRange.Maximum, 64)
		if err1 != nil || err2 != nil {
			if mode == Strict {
				return nil, fmt.Errorf("description: state variable %q has non-numeric allowedValueRange bounds", svx.Name)
			}
			return v, nil
		}
		v.RangeMin = &min
		v.RangeMax = &max
		if svx.AllowedRange.Step != "" {
			if step, err := strconv.ParseFloat(svx.AllowedRange.Step, 64); err == nil {
				v.RangeStep = &step
			}
		}
		if v.RangeStep == nil {
			v.RangeStep = defaultStep(dt, max)
		}
	}
	v.SetCurrentValue(v.DefaultValue)
	return v, nil
}

func parseAction(ax actionXML, svc *devicemodel.Service) (*devicemodel.Action, error) {
	action := &devicemodel.Action{Name: ax.Name}
	for _, argx := range ax.Arguments {
		dir := devicemodel.Direction(argx.Direction)
		related, ok := svc.StateVariableByName(argx.RelatedStateVar)
		if !ok {
			return nil, fmt.Errorf("action %q: argument %q references unknown state variable %q", ax.Name, argx.Name, argx.RelatedStateVar)
		}
		action.Arguments = append(action.Arguments, devicemodel.Argument{
			Name: argx.Name, Direction: dir, RelatedVar: related, IsRetval: argx.Retval != nil,
		})
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}
