package soap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/internal/log"
	"github.com/upnpda/upnpda/metrics"
)

// ActionFunc is user service code for one action: given the already
// type-validated input arguments (by declared argument name), it returns
// output argument values by name or an error. Errors that are a Fault
// carry a specific UPnP error code through to the wire; any other error
// becomes 501 Action Failed (spec.md §4.5 error table).
type ActionFunc func(ctx context.Context, in map[string]string) (map[string]string, error)

// Dispatcher routes inbound SOAP POSTs by control-URL path to a service's
// registered ActionFunc, per spec.md §4.6. It is mounted as a chi.Router
// handler by the host package alongside the GENA SUBSCRIBE/UNSUBSCRIBE
// routes, reusing the same wire.Server the device host's HTTP listener
// already runs.
type Dispatcher struct {
	tree     *devicemodel.Tree
	handlers map[*devicemodel.Service]map[string]ActionFunc
	sem      *semaphore.Weighted
}

// DefaultWorkerPoolSize bounds concurrent action-handler invocations
// (spec.md §5 "bounded worker pool (default 10)").
const DefaultWorkerPoolSize = 10

// NewDispatcher builds a Dispatcher over tree with the given worker pool
// size (0 uses DefaultWorkerPoolSize).
func NewDispatcher(tree *devicemodel.Tree, poolSize int64) *Dispatcher {
	if poolSize <= 0 {
		poolSize = DefaultWorkerPoolSize
	}
	return &Dispatcher{
		tree:     tree,
		handlers: map[*devicemodel.Service]map[string]ActionFunc{},
		sem:      semaphore.NewWeighted(poolSize),
	}
}

// Register binds fn as the handler for action actionName on svc.
func (d *Dispatcher) Register(svc *devicemodel.Service, actionName string, fn ActionFunc) {
	m, ok := d.handlers[svc]
	if !ok {
		m = map[string]ActionFunc{}
		d.handlers[svc] = m
	}
	m[actionName] = fn
}

// ServeHTTP implements http.Handler, dispatching a SOAP POST by the
// request path matched against each service's control URL.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	svc, ok := d.tree.ServiceByControlURL(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeFault(w, http.StatusBadRequest, Fault{ErrorCode: ErrActionFailed, ErrorDescription: "failed to read request body"})
		return
	}

	soapAction := strings.Trim(r.Header.Get("SOAPACTION"), `"`)
	actionName := extractActionName(soapAction)

	action, ok := svc.ActionByName(actionName)
	if !ok {
		writeFault(w, http.StatusUnauthorized, Fault{ErrorCode: ErrInvalidAction, ErrorDescription: fmt.Sprintf("unknown action %q", actionName)})
		return
	}

	bodyContent, err := ParseBody(body)
	if err != nil {
		writeFault(w, http.StatusInternalServerError, Fault{ErrorCode: ErrActionFailed, ErrorDescription: "malformed SOAP envelope"})
		return
	}
	elem, err := DecodeAction(bodyContent)
	if err != nil {
		writeFault(w, http.StatusInternalServerError, Fault{ErrorCode: ErrActionFailed, ErrorDescription: "malformed action body"})
		return
	}

	in, err := bindInputArgs(action, elem.Args)
	if err != nil {
		var outOfRange *devicemodel.ErrValueOutOfRange
		var notAllowed *devicemodel.ErrValueNotAllowed
		switch {
		case errors.As(err, &outOfRange):
			writeFault(w, http.StatusPaymentRequired, Fault{ErrorCode: ErrArgumentValueOutOfRange, ErrorDescription: err.Error()})
		case errors.As(err, &notAllowed):
			writeFault(w, http.StatusPaymentRequired, Fault{ErrorCode: ErrArgumentValueInvalid, ErrorDescription: err.Error()})
		default:
			writeFault(w, http.StatusPaymentRequired, Fault{ErrorCode: ErrInvalidArgs, ErrorDescription: err.Error()})
		}
		return
	}

	handler, ok := d.lookupHandler(svc, actionName)
	if !ok {
		writeFault(w, http.StatusUnauthorized, Fault{ErrorCode: ErrOptionalActionNotImpl, ErrorDescription: fmt.Sprintf("action %q not implemented", actionName)})
		return
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		writeFault(w, http.StatusServiceUnavailable, Fault{ErrorCode: ErrActionFailed, ErrorDescription: "shutting down"})
		return
	}
	out, err := d.invoke(ctx, handler, in)
	d.sem.Release(1)

	if err != nil {
		var f Fault
		if asFault, ok := err.(Fault); ok {
			f = asFault
		} else {
			f = Fault{ErrorCode: ErrActionFailed, ErrorDescription: err.Error()}
		}
		log.Warn(ctx, "soap: action failed", "action", actionName, "error", err)
		metrics.ActionInvocations.WithLabelValues(svc.ServiceType.String(), actionName, "fault").Inc()
		writeFault(w, http.StatusInternalServerError, f)
		return
	}

	encoded, err := encodeOutputArgs(action, out)
	if err != nil {
		metrics.ActionInvocations.WithLabelValues(svc.ServiceType.String(), actionName, "failed").Inc()
		writeFault(w, http.StatusInternalServerError, Fault{ErrorCode: ErrActionFailed, ErrorDescription: err.Error()})
		return
	}
	metrics.ActionInvocations.WithLabelValues(svc.ServiceType.String(), actionName, "ok").Inc()
	resp := EncodeResponse(svc.ServiceType.String(), actionName, encoded)
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("Ext", "")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

func (d *Dispatcher) lookupHandler(svc *devicemodel.Service, action string) (ActionFunc, bool) {
	m, ok := d.handlers[svc]
	if !ok {
		return nil, false
	}
	fn, ok := m[action]
	return fn, ok
}

// invoke runs fn on its own goroutine so a slow handler cannot hold the
// HTTP connection goroutine beyond what the caller's context allows; the
// semaphore acquired by the caller already bounds concurrency.
func (d *Dispatcher) invoke(ctx context.Context, fn ActionFunc, in map[string]string) (map[string]string, error) {
	type result struct {
		out map[string]string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := fn(ctx, in)
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, Fault{ErrorCode: ErrActionFailed, ErrorDescription: "request cancelled"}
	}
}

func bindInputArgs(action *devicemodel.Action, args []EncodedArg) (map[string]string, error) {
	wire := map[string]string{}
	for _, a := range args {
		wire[a.Name] = a.Value
	}
	in := map[string]string{}
	for _, arg := range action.InArgs() {
		v, ok := wire[arg.Name]
		if !ok {
			return nil, fmt.Errorf("missing argument %q", arg.Name)
		}
		decoded, err := DecodeValue(arg.RelatedVar.DataType, v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		if err := arg.RelatedVar.ValidateValue(decoded); err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		in[arg.Name] = decoded
	}
	return in, nil
}

func encodeOutputArgs(action *devicemodel.Action, out map[string]string) ([]EncodedArg, error) {
	var encoded []EncodedArg
	for _, arg := range action.OutArgs() {
		v, ok := out[arg.Name]
		if !ok {
			return nil, fmt.Errorf("handler did not return output argument %q", arg.Name)
		}
		wireVal, err := EncodeValue(arg.RelatedVar.DataType, v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		encoded = append(encoded, EncodedArg{Name: arg.Name, Value: wireVal})
	}
	return encoded, nil
}

func writeFault(w http.ResponseWriter, status int, f Fault) {
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(status)
	w.Write(EncodeFault(f))
}

func extractActionName(soapAction string) string {
	if idx := strings.LastIndex(soapAction, "#"); idx >= 0 {
		return soapAction[idx+1:]
	}
	return soapAction
}
