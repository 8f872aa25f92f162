package devicemodel_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/devicemodel"
)

var _ = Describe("Action.Validate", func() {
	It("accepts in-before-out with a single leading retval", func() {
		v := &devicemodel.StateVariable{Name: "Target"}
		a := &devicemodel.Action{Name: "SetGet", Arguments: []devicemodel.Argument{
			{Name: "newVal", Direction: devicemodel.DirIn, RelatedVar: v},
			{Name: "ret", Direction: devicemodel.DirOut, RelatedVar: v, IsRetval: true},
			{Name: "extra", Direction: devicemodel.DirOut, RelatedVar: v},
		}}
		Expect(a.Validate()).To(Succeed())
	})

	It("rejects an in argument following an out argument", func() {
		v := &devicemodel.StateVariable{Name: "Target"}
		a := &devicemodel.Action{Name: "Bad", Arguments: []devicemodel.Argument{
			{Name: "out1", Direction: devicemodel.DirOut, RelatedVar: v},
			{Name: "in1", Direction: devicemodel.DirIn, RelatedVar: v},
		}}
		Expect(a.Validate()).To(HaveOccurred())
	})

	It("rejects more than one retval", func() {
		v := &devicemodel.StateVariable{Name: "Target"}
		a := &devicemodel.Action{Name: "Bad", Arguments: []devicemodel.Argument{
			{Name: "r1", Direction: devicemodel.DirOut, RelatedVar: v, IsRetval: true},
			{Name: "r2", Direction: devicemodel.DirOut, RelatedVar: v, IsRetval: true},
		}}
		Expect(a.Validate()).To(HaveOccurred())
	})

	It("rejects a duplicate input argument name", func() {
		v := &devicemodel.StateVariable{Name: "Target"}
		a := &devicemodel.Action{Name: "Bad", Arguments: []devicemodel.Argument{
			{Name: "newVal", Direction: devicemodel.DirIn, RelatedVar: v},
			{Name: "newVal", Direction: devicemodel.DirIn, RelatedVar: v},
		}}
		Expect(a.Validate()).To(HaveOccurred())
	})

	It("rejects a duplicate output argument name", func() {
		v := &devicemodel.StateVariable{Name: "Target"}
		a := &devicemodel.Action{Name: "Bad", Arguments: []devicemodel.Argument{
			{Name: "out1", Direction: devicemodel.DirOut, RelatedVar: v},
			{Name: "out1", Direction: devicemodel.DirOut, RelatedVar: v},
		}}
		Expect(a.Validate()).To(HaveOccurred())
	})

	It("rejects an argument name that is empty or does not start with a letter or underscore", func() {
		v := &devicemodel.StateVariable{Name: "Target"}
		a := &devicemodel.Action{Name: "Bad", Arguments: []devicemodel.Argument{
			{Name: "1leading", Direction: devicemodel.DirIn, RelatedVar: v},
		}}
		Expect(a.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("StateVariable.ValidateValue", func() {
	It("accepts a value present in an allowed value list", func() {
		v := &devicemodel.StateVariable{Name: "Mode", DataType: devicemodel.TypeString, AllowedList: []string{"NORMAL", "REPEAT_ALL"}}
		Expect(v.ValidateValue("REPEAT_ALL")).To(Succeed())
	})

	It("rejects a value absent from an allowed value list", func() {
		v := &devicemodel.StateVariable{Name: "Mode", DataType: devicemodel.TypeString, AllowedList: []string{"NORMAL", "REPEAT_ALL"}}
		err := v.ValidateValue("SHUFFLE")
		Expect(err).To(HaveOccurred())
		var notAllowed *devicemodel.ErrValueNotAllowed
		Expect(errors.As(err, &notAllowed)).To(BeTrue())
	})

	It("accepts a value inside an allowed range", func() {
		min, max := 0.0, 100.0
		v := &devicemodel.StateVariable{Name: "Volume", DataType: devicemodel.TypeUI1, RangeMin: &min, RangeMax: &max}
		Expect(v.ValidateValue("50")).To(Succeed())
	})

	It("rejects a value outside an allowed range", func() {
		min, max := 0.0, 100.0
		v := &devicemodel.StateVariable{Name: "Volume", DataType: devicemodel.TypeUI1, RangeMin: &min, RangeMax: &max}
		err := v.ValidateValue("150")
		Expect(err).To(HaveOccurred())
		var outOfRange *devicemodel.ErrValueOutOfRange
		Expect(errors.As(err, &outOfRange)).To(BeTrue())
	})
})

var _ = Describe("Tree lookups", func() {
	It("finds devices and services without parent back-pointers", func() {
		root := &devicemodel.Device{FriendlyName: "root"}
		child := &devicemodel.Device{FriendlyName: "child"}
		root.Embedded = []*devicemodel.Device{child}
		svc := &devicemodel.Service{ControlURL: "http://x/ctl", EventSubURL: "http://x/evt"}
		child.Services = []*devicemodel.Service{svc}
		tree := &devicemodel.Tree{Root: root}

		Expect(tree.AllDevices()).To(HaveLen(2))
		got, ok := tree.ServiceByControlURL("http://x/ctl")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(svc))

		_, ok = tree.ServiceByEventSubURL("http://nope")
		Expect(ok).To(BeFalse())
	})
})
