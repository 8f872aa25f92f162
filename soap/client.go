package soap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/internal/wire"
)

// DefaultInvokeTimeout is the per-invocation timeout spec.md §4.5 names
// ("queued until the previous completes or times out (default 30 s)").
const DefaultInvokeTimeout = 30 * time.Second

// Args is a set of argument values keyed by declared argument name, used
// for both invocation input and output.
type Args map[string]string

// Client invokes actions against a single service, serializing calls
// through a per-service lock and rotating across known control-URL
// locations on connection failure, per spec.md §4.5.
type Client struct {
	Service   *devicemodel.Service
	Locations []string // control URLs to try, in order; Service.ControlURL is used if empty
	Timeout   time.Duration
	Transport *wire.Client

	mu sync.Mutex // serializes invocations to this service
}

// NewClient builds a Client for svc, trying only its resolved control URL.
// Callers that track multiple known locations for the same device (e.g.
// after a description refresh moved the control URL) should set Locations.
func NewClient(svc *devicemodel.Service) *Client {
	return &Client{Service: svc, Transport: &wire.Client{}}
}

// Handle is returned by BeginInvoke and resolved by WaitForInvoke.
type Handle struct {
	done chan invokeResult
}

type invokeResult struct {
	out Args
	err error
}

// Invoke performs a synchronous call: compose, send, wait, return. It is
// BeginInvoke followed immediately by WaitForInvoke.
func (c *Client) Invoke(ctx context.Context, action string, in Args) (Args, error) {
	h := c.BeginInvoke(ctx, action, in)
	return c.WaitForInvoke(h)
}

// BeginInvoke starts the call on its own goroutine and returns immediately
// with a handle (spec.md §4.5 "begin_invoke returns a handle").
func (c *Client) BeginInvoke(ctx context.Context, action string, in Args) *Handle {
	h := &Handle{done: make(chan invokeResult, 1)}
	go func() {
		out, err := c.invokeLocked(ctx, action, in)
		h.done <- invokeResult{out, err}
	}()
	return h
}

// WaitForInvoke blocks until the call started by BeginInvoke completes
// (spec.md §4.5 "wait_for_invoke blocks until complete").
func (c *Client) WaitForInvoke(h *Handle) (Args, error) {
	r := <-h.done
	return r.out, r.err
}

// CompletionFunc is invoked on the worker goroutine that performed the
// call, once it completes.
type CompletionFunc func(out Args, err error)

// InvokeAsync runs the call and, on completion, invokes fn on the same
// worker goroutine (spec.md §4.5 "completion-callback variant").
func (c *Client) InvokeAsync(ctx context.Context, action string, in Args, fn CompletionFunc) {
	go func() {
		out, err := c.invokeLocked(ctx, action, in)
		fn(out, err)
	}()
}

// InvokeFireAndForget starts the call and discards its result once
// complete (spec.md §4.5 "fire-and-forget variant discards the result").
func (c *Client) InvokeFireAndForget(ctx context.Context, action string, in Args) {
	go func() {
		_, _ = c.invokeLocked(ctx, action, in)
	}()
}

// invokeLocked serializes on the per-service lock, then tries each known
// location in turn, rotating past connection failures.
func (c *Client) invokeLocked(ctx context.Context, action string, in Args) (Args, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultInvokeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locations := c.Locations
	if len(locations) == 0 {
		locations = []string{c.Service.ControlURL}
	}

	reqArgs, err := encodeInputArgs(c.Service, action, in)
	if err != nil {
		return nil, err
	}
	body := EncodeRequest(c.Service.ServiceType.String(), action, reqArgs)

	var lastErr error
	for _, loc := range locations {
		out, err := c.invokeOne(ctx, loc, action, body)
		if err == nil {
			return out, nil
		}
		if fault, ok := err.(Fault); ok {
			// A well-formed fault from a reachable device is not a
			// connection failure: don't rotate locations for it.
			return nil, fault
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("soap: no known locations for service")
	}
	return nil, fmt.Errorf("soap: undefined-failure: all locations exhausted: %w", lastErr)
}

func (c *Client) invokeOne(ctx context.Context, location, action string, body []byte) (Args, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, location, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("soap: building request: %w", err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf("%q", fmt.Sprintf("%s#%s", c.Service.ServiceType.String(), action)))

	transport := c.Transport
	if transport == nil {
		transport = &wire.Client{}
	}
	resp, err := transport.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("soap: connection failure: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("soap: connection failure: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if f, ok := ParseFault(respBody); ok {
			return nil, f
		}
		return nil, fmt.Errorf("soap: action failed: unexpected status %d", resp.StatusCode)
	}

	content, err := ParseBody(respBody)
	if err != nil {
		return nil, fmt.Errorf("soap: malformed response envelope: %w", err)
	}
	elem, err := DecodeAction(content)
	if err != nil {
		return nil, fmt.Errorf("soap: malformed response body: %w", err)
	}
	return decodeOutputArgs(c.Service, action, elem.Args)
}

func encodeInputArgs(svc *devicemodel.Service, actionName string, in Args) ([]EncodedArg, error) {
	act, ok := svc.ActionByName(actionName)
	if !ok {
		return nil, fmt.Errorf("soap: unknown action %q", actionName)
	}
	var encoded []EncodedArg
	for _, arg := range act.InArgs() {
		v, ok := in[arg.Name]
		if !ok {
			return nil, fmt.Errorf("soap: missing input argument %q", arg.Name)
		}
		wireVal, err := EncodeValue(arg.RelatedVar.DataType, v)
		if err != nil {
			return nil, fmt.Errorf("soap: argument %q: %w", arg.Name, err)
		}
		encoded = append(encoded, EncodedArg{Name: arg.Name, Value: wireVal})
	}
	return encoded, nil
}

func decodeOutputArgs(svc *devicemodel.Service, actionName string, wireArgs []EncodedArg) (Args, error) {
	act, ok := svc.ActionByName(actionName)
	if !ok {
		return nil, fmt.Errorf("soap: unknown action %q", actionName)
	}
	byName := map[string]string{}
	for _, a := range wireArgs {
		byName[a.Name] = a.Value
	}
	out := Args{}
	for _, arg := range act.OutArgs() {
		v, ok := byName[arg.Name]
		if !ok {
			return nil, fmt.Errorf("soap: response missing output argument %q", arg.Name)
		}
		decoded, err := DecodeValue(arg.RelatedVar.DataType, v)
		if err != nil {
			return nil, fmt.Errorf("soap: argument %q: %w", arg.Name, err)
		}
		out[arg.Name] = decoded
	}
	return out, nil
}
