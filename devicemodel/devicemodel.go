// Package devicemodel holds the in-memory device/service/action graph
// produced by description parsing and queried by the SOAP, GENA, host, and
// control layers — spec.md §3 and §9's "tree-indexed identifiers... all
// lookups going through the registry" guidance. Devices and services never
// hold a parent back-pointer; callers look up ancestry through a Tree.
package devicemodel

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/upnpda/upnpda/upnptype"
)

// Device is one node (root or embedded) in a description tree.
type Device struct {
	UDN              upnptype.UDN
	DeviceType       upnptype.ResourceType
	FriendlyName     string
	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	ModelURL         string
	SerialNumber     string
	UPC              string
	PresentationURL  string
	Icons            []Icon
	Services         []*Service
	Embedded         []*Device
}

// Icon is one <icon> entry in a device's iconList.
type Icon struct {
	Mimetype string
	Width    int
	Height   int
	Depth    int
	URL      string // resolved absolute URL once the host assigns one
	rawURL   string // unused; URL keeps the description's value until the host rewrites it
}

// Service is one <service> entry, including both the stub fields filled by
// root-description parsing and the state-variable/action tables filled by
// a subsequent SCPD parse (spec.md §4.4 "second pass").
type Service struct {
	ServiceType upnptype.ResourceType
	ServiceID   string
	SCPDURL     string // resolved absolute URL once the host assigns one
	ControlURL  string
	EventSubURL string

	StateVariables []*StateVariable
	Actions        []*Action
}

// DataType is the literal UDA 1.1 state-variable datatype enumeration.
type DataType string

const (
	TypeString   DataType = "string"
	TypeBoolean  DataType = "boolean"
	TypeI1       DataType = "i1"
	TypeI2       DataType = "i2"
	TypeI4       DataType = "i4"
	TypeUI1      DataType = "ui1"
	TypeUI2      DataType = "ui2"
	TypeUI4      DataType = "ui4"
	TypeR4       DataType = "r4"
	TypeR8       DataType = "r8"
	TypeNumber   DataType = "number"
	TypeFixed14_4 DataType = "fixed.14.4"
	TypeChar     DataType = "char"
	TypeDate     DataType = "date"
	TypeDateTime DataType = "dateTime"
	TypeDateTimeTZ DataType = "dateTime.tz"
	TypeTime     DataType = "time"
	TypeTimeTZ   DataType = "time.tz"
	TypeBinBase64 DataType = "bin.base64"
	TypeBinHex   DataType = "bin.hex"
	TypeURI      DataType = "uri"
	TypeUUID     DataType = "uuid"
)

// numericTypes is the subset of DataType that carries an allowedValueRange
// rather than an allowedValueList.
var numericTypes = map[DataType]bool{
	TypeI1: true, TypeI2: true, TypeI4: true,
	TypeUI1: true, TypeUI2: true, TypeUI4: true,
	TypeR4: true, TypeR8: true, TypeNumber: true, TypeFixed14_4: true,
}

// IsNumeric reports whether dt takes an allowedValueRange rather than an
// allowedValueList (spec.md §4.4 "numeric-with-range" variant).
func (dt DataType) IsNumeric() bool { return numericTypes[dt] }

// integerTypes is the subset of numericTypes with no fractional part,
// used to pick the UDA default step (1, vs. a fraction of the range for
// the real-valued types) when a description omits <step>.
var integerTypes = map[DataType]bool{
	TypeI1: true, TypeI2: true, TypeI4: true,
	TypeUI1: true, TypeUI2: true, TypeUI4: true,
}

// IsInteger reports whether dt is one of the integral numeric types.
func (dt DataType) IsInteger() bool { return integerTypes[dt] }

// StateVariable is one <stateVariable> entry: either a plain typed
// variable, a string with an allowed-value list, or a numeric with a
// range, per spec.md §4.4.
type StateVariable struct {
	Name         string
	DataType     DataType
	SendEvents   bool
	DefaultValue string
	AllowedList  []string    // non-nil only for a string-with-allowed-list
	RangeMin     *float64    // non-nil only for a numeric-with-range
	RangeMax     *float64
	RangeStep    *float64

	current string // current serialized value; devicemodel does no locking
}

// Direction is an action argument's direction.
type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
)

// Argument is one <argument> in an action's argument list.
type Argument struct {
	Name        string
	Direction   Direction
	RelatedVar  *StateVariable
	IsRetval    bool
}

// Action is one <action> entry. Constraints enforced at parse time (spec.md
// §4.4): all `in` arguments precede all `out` arguments, at most one
// retval, and the retval (if any) is the first `out` argument.
type Action struct {
	Name      string
	Arguments []Argument
}

// InArgs returns the action's input arguments in declaration order.
func (a *Action) InArgs() []Argument {
	var out []Argument
	for _, arg := range a.Arguments {
		if arg.Direction == DirIn {
			out = append(out, arg)
		}
	}
	return out
}

// OutArgs returns the action's output arguments in declaration order.
func (a *Action) OutArgs() []Argument {
	var out []Argument
	for _, arg := range a.Arguments {
		if arg.Direction == DirOut {
			out = append(out, arg)
		}
	}
	return out
}

// isValidArgName reports whether name is non-empty and starts with a
// letter or underscore, per spec.md §3's argument-name invariant.
func isValidArgName(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Validate enforces the in-before-out, single-retval, retval-is-first-out,
// unique-argument-name, and valid-argument-name constraints (spec.md §3,
// §4.4). It returns a descriptive error rather than silently producing an
// invalid Action, since the caller (description parsing) accumulates
// these with go-multierror.
func (a *Action) Validate() error {
	seenOut := false
	retvals := 0
	seenIn := map[string]bool{}
	seenOutNames := map[string]bool{}
	for i, arg := range a.Arguments {
		if !isValidArgName(arg.Name) {
			return fmt.Errorf("action %q: argument name %q is empty or does not start with a letter or underscore", a.Name, arg.Name)
		}
		switch arg.Direction {
		case DirIn:
			if seenOut {
				return fmt.Errorf("action %q: argument %q (in) follows an out argument", a.Name, arg.Name)
			}
			if seenIn[arg.Name] {
				return fmt.Errorf("action %q: input argument %q declared more than once", a.Name, arg.Name)
			}
			seenIn[arg.Name] = true
		case DirOut:
			seenOut = true
			if seenOutNames[arg.Name] {
				return fmt.Errorf("action %q: output argument %q declared more than once", a.Name, arg.Name)
			}
			seenOutNames[arg.Name] = true
			if arg.IsRetval {
				retvals++
				if i != firstOutIndex(a.Arguments) {
					return fmt.Errorf("action %q: retval %q is not the first out argument", a.Name, arg.Name)
				}
			}
		default:
			return fmt.Errorf("action %q: argument %q has invalid direction %q", a.Name, arg.Name, arg.Direction)
		}
	}
	if retvals > 1 {
		return fmt.Errorf("action %q: more than one retval", a.Name)
	}
	return nil
}

func firstOutIndex(args []Argument) int {
	for i, a := range args {
		if a.Direction == DirOut {
			return i
		}
	}
	return -1
}

// Tree is a fully parsed, validated device description: a root device plus
// its full embedded-device/service graph, with lookup helpers so callers
// never need parent back-pointers (spec.md §9).
type Tree struct {
	Root *Device
}

// AllDevices returns the root and every embedded device, depth-first.
func (t *Tree) AllDevices() []*Device {
	var out []*Device
	var walk func(*Device)
	walk = func(d *Device) {
		out = append(out, d)
		for _, e := range d.Embedded {
			walk(e)
		}
	}
	walk(t.Root)
	return out
}

// AllServices returns every service in the tree, depth-first.
func (t *Tree) AllServices() []*Service {
	var out []*Service
	for _, d := range t.AllDevices() {
		out = append(out, d.Services...)
	}
	return out
}

// DeviceByUDN finds a device anywhere in the tree by UDN.
func (t *Tree) DeviceByUDN(udn upnptype.UDN) (*Device, bool) {
	for _, d := range t.AllDevices() {
		if d.UDN.Equal(udn) {
			return d, true
		}
	}
	return nil, false
}

// ServiceByControlURL finds a service by its control URL, the lookup the
// SOAP dispatcher uses for every inbound POST. Only the path component is
// compared, since an inbound request carries a path (origin-form request
// target) regardless of whether the host assigned the service an
// absolute or a relative URL.
func (t *Tree) ServiceByControlURL(u string) (*Service, bool) {
	for _, s := range t.AllServices() {
		if pathOf(s.ControlURL) == pathOf(u) {
			return s, true
		}
	}
	return nil, false
}

// ServiceByEventSubURL finds a service by its event-subscription URL, the
// lookup the GENA dispatcher uses for SUBSCRIBE/UNSUBSCRIBE. See
// ServiceByControlURL for why only the path component is compared.
func (t *Tree) ServiceByEventSubURL(u string) (*Service, bool) {
	for _, s := range t.AllServices() {
		if pathOf(s.EventSubURL) == pathOf(u) {
			return s, true
		}
	}
	return nil, false
}

// pathOf returns the path component of s, whether s is an absolute URL or
// already a bare path, falling back to s itself if it cannot be parsed.
func pathOf(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	return u.Path
}

// ActionByName finds an action on a service by name.
func (s *Service) ActionByName(name string) (*Action, bool) {
	for _, a := range s.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// StateVariableByName finds a state variable on a service by name.
func (s *Service) StateVariableByName(name string) (*StateVariable, bool) {
	for _, v := range s.StateVariables {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// CurrentValue returns the state variable's current serialized value.
// devicemodel itself does not lock, and Service carries no lock of its own.
func (v *StateVariable) CurrentValue() string { return v.current }

// SetCurrentValue updates the state variable's current serialized value.
func (v *StateVariable) SetCurrentValue(s string) { v.current = s }

// ErrValueNotAllowed reports a string-with-allowedValueList variable given
// a value outside its list (spec.md §3, UPnPError 600).
type ErrValueNotAllowed struct {
	Variable string
	Value    string
}

func (e *ErrValueNotAllowed) Error() string {
	return fmt.Sprintf("value %q is not in %q's allowed value list", e.Value, e.Variable)
}

// ErrValueOutOfRange reports a numeric-with-range variable given a value
// outside its minimum/maximum (spec.md §3, UPnPError 601).
type ErrValueOutOfRange struct {
	Variable string
	Value    string
}

func (e *ErrValueOutOfRange) Error() string {
	return fmt.Sprintf("value %q is out of %q's allowed range", e.Value, e.Variable)
}

// ValidateValue checks s against v's allowedValueList or allowedValueRange,
// whichever applies (spec.md §3 "current value belongs to the type's value
// space / lies within range / is one of the allowed set"). A variable with
// neither constraint declared accepts any value of its data type; decoding
// into the Go type has already happened by the time this is called.
func (v *StateVariable) ValidateValue(s string) error {
	if v.AllowedList != nil {
		for _, allowed := range v.AllowedList {
			if allowed == s {
				return nil
			}
		}
		return &ErrValueNotAllowed{Variable: v.Name, Value: s}
	}
	if v.RangeMin != nil && v.RangeMax != nil {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return &ErrValueOutOfRange{Variable: v.Name, Value: s}
		}
		if f < *v.RangeMin || f > *v.RangeMax {
			return &ErrValueOutOfRange{Variable: v.Name, Value: s}
		}
	}
	return nil
}
