package soap_test

import (
	"context"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/soap"
)

var _ = Describe("Client.Invoke", func() {
	var (
		svc    *devicemodel.Service
		server *httptest.Server
	)

	BeforeEach(func() {
		svc = newTestService()
		tree := &devicemodel.Tree{Root: &devicemodel.Device{Services: []*devicemodel.Service{svc}}}
		d := soap.NewDispatcher(tree, 2)
		d.Register(svc, "Greet", func(ctx context.Context, in map[string]string) (map[string]string, error) {
			return map[string]string{"Greeting": "hello " + in["Name"]}, nil
		})
		server = httptest.NewServer(d)
		svc.ControlURL = server.URL + "/ctl/Greeter"
	})

	AfterEach(func() {
		server.Close()
	})

	It("invokes the action over HTTP and decodes typed output arguments", func() {
		c := soap.NewClient(svc)
		out, err := c.Invoke(context.Background(), "Greet", soap.Args{"Name": "world"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveKeyWithValue("Greeting", "hello world"))
	})

	It("serializes concurrent invocations through the per-service lock", func() {
		c := soap.NewClient(svc)
		results := make(chan error, 4)
		for i := 0; i < 4; i++ {
			go func() {
				_, err := c.Invoke(context.Background(), "Greet", soap.Args{"Name": "x"})
				results <- err
			}()
		}
		for i := 0; i < 4; i++ {
			Eventually(results).Should(Receive(BeNil()))
		}
	})

	It("rejects an invocation naming an action the service does not declare", func() {
		c := soap.NewClient(svc)
		_, err := c.Invoke(context.Background(), "Ghost", soap.Args{})
		Expect(err).To(HaveOccurred())
	})

	It("reports undefined-failure once all locations are exhausted", func() {
		c := soap.NewClient(svc)
		c.Locations = []string{"http://127.0.0.1:1/ctl/Greeter"}
		_, err := c.Invoke(context.Background(), "Greet", soap.Args{"Name": "x"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("undefined-failure"))
	})

	It("supports the begin/wait handle-based execution model", func() {
		c := soap.NewClient(svc)
		h := c.BeginInvoke(context.Background(), "Greet", soap.Args{"Name": "handle"})
		out, err := c.WaitForInvoke(h)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveKeyWithValue("Greeting", "hello handle"))
	})

	It("invokes the completion callback on the worker goroutine", func() {
		c := soap.NewClient(svc)
		done := make(chan soap.Args, 1)
		c.InvokeAsync(context.Background(), "Greet", soap.Args{"Name": "cb"}, func(out soap.Args, err error) {
			Expect(err).NotTo(HaveOccurred())
			done <- out
		})
		Eventually(done).Should(Receive(HaveKeyWithValue("Greeting", "hello cb")))
	})

	It("fire-and-forget does not block the caller", func() {
		c := soap.NewClient(svc)
		Expect(func() { c.InvokeFireAndForget(context.Background(), "Greet", soap.Args{"Name": "ff"}) }).NotTo(Panic())
	})
})
