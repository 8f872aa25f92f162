package gena

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/internal/log"
	"github.com/upnpda/upnpda/internal/wire"
	"github.com/upnpda/upnpda/metrics"
	"github.com/upnpda/upnpda/upnptype"
)

// DefaultLease is used when a SUBSCRIBE omits TIMEOUT, and is also the
// ceiling applied to an overly long requested lease.
const DefaultLease = 30 * time.Minute

// Subscription is one active GENA event subscription held by the server
// side registry — spec.md §4.7.
type Subscription struct {
	Sid       upnptype.Sid
	Service   *devicemodel.Service
	Callbacks []string
	Expiry    time.Time

	mu      sync.Mutex
	nextSeq uint32
	failed  bool
	queue   chan []PropertyChange
	done    chan struct{}
}

// Failed reports whether every known callback URL has been exhausted —
// the subscription is kept (it may still be renewed) but no further
// NOTIFYs are attempted until it is.
func (s *Subscription) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// incSeq advances a GENA SEQ value, skipping the reserved 0 on overflow
// (spec.md §4.7 "on overflow past 2³²−1 the next value is 1").
func incSeq(seq uint32) uint32 {
	seq++
	if seq == 0 {
		seq = 1
	}
	return seq
}

// Registry holds every live subscription, keyed by SID, and is the
// server-side entry point for SUBSCRIBE/RENEW/UNSUBSCRIBE and for
// publishing state-variable changes.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Subscription
	Server  string // SERVER header value for SUBSCRIBE responses
	Transport *wire.Client
	closed  bool
}

// NewRegistry builds an empty subscription registry.
func NewRegistry(server string) *Registry {
	return &Registry{byID: map[string]*Subscription{}, Server: server, Transport: &wire.Client{}}
}

// Close marks the registry closed: no further SUBSCRIBE is accepted, and
// every live subscription's sender is stopped (spec.md §4.8 shutdown
// sequence "reject new subscriptions"). Existing NOTIFYs already queued
// continue draining until their sender observes the stop.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	subs := make([]*Subscription, 0, len(r.byID))
	for _, sub := range r.byID {
		subs = append(subs, sub)
	}
	r.byID = map[string]*Subscription{}
	r.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
		metrics.ActiveSubscriptions.WithLabelValues("host").Dec()
	}
}

// Subscribe mints a fresh subscription for svc, starts its sender
// goroutine, and enqueues the initial SEQ=0 snapshot of every evented
// state variable's current value.
func (r *Registry) Subscribe(ctx context.Context, svc *devicemodel.Service, callbacks []string, timeout upnptype.Timeout) (*Subscription, error) {
	if len(callbacks) == 0 {
		return nil, fmt.Errorf("gena: SUBSCRIBE requires at least one CALLBACK url")
	}
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("gena: registry is shutting down")
	}
	lease := leaseDuration(timeout)
	sub := &Subscription{
		Sid:       upnptype.NewSid(),
		Service:   svc,
		Callbacks: callbacks,
		Expiry:    time.Now().Add(lease),
		queue:     make(chan []PropertyChange, 32),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.byID[sub.Sid.String()] = sub
	r.mu.Unlock()
	metrics.ActiveSubscriptions.WithLabelValues("host").Inc()

	go r.runSender(sub)

	var initial []PropertyChange
	for _, v := range svc.StateVariables {
		if v.SendEvents {
			initial = append(initial, PropertyChange{Name: v.Name, Value: v.CurrentValue()})
		}
	}
	sub.queue <- initial
	return sub, nil
}

// Renew extends an existing subscription's lease, identified by SID
// alone (spec.md §4.7 "Renew"), and clears its failed mark so that
// NOTIFYs are attempted again.
func (r *Registry) Renew(sid upnptype.Sid, timeout upnptype.Timeout) (*Subscription, error) {
	r.mu.RLock()
	sub, ok := r.byID[sid.String()]
	r.mu.RUnlock()
	if !ok {
		return nil, errUnknownSid
	}
	sub.mu.Lock()
	sub.Expiry = time.Now().Add(leaseDuration(timeout))
	sub.failed = false
	sub.mu.Unlock()
	return sub, nil
}

// Unsubscribe removes a subscription from the registry and stops its
// sender. No further NOTIFYs are sent once this returns.
func (r *Registry) Unsubscribe(sid upnptype.Sid) error {
	r.mu.Lock()
	sub, ok := r.byID[sid.String()]
	if ok {
		delete(r.byID, sid.String())
	}
	r.mu.Unlock()
	if !ok {
		return errUnknownSid
	}
	close(sub.done)
	metrics.ActiveSubscriptions.WithLabelValues("host").Dec()
	return nil
}

// errUnknownSid is surfaced as a 412 Precondition Failed by the SUBSCRIBE
// HTTP handler.
var errUnknownSid = fmt.Errorf("gena: unknown SID")

// Publish enqueues changes for delivery to every live, non-failed
// subscription on svc.
func (r *Registry) Publish(svc *devicemodel.Service, changes []PropertyChange) {
	if len(changes) == 0 {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.byID {
		if sub.Service != svc {
			continue
		}
		if sub.Failed() {
			continue
		}
		select {
		case sub.queue <- changes:
		default:
			log.Warn(context.Background(), "gena: subscription queue full, dropping event", "sid", sub.Sid.String())
		}
	}
}

// runSender drains sub's queue FIFO, one NOTIFY per queued batch,
// retrying a failed delivery once before rotating to the next callback
// URL, and marking the subscription failed once every callback has been
// exhausted (spec.md §4.7 "Per-subscription ordering").
func (r *Registry) runSender(sub *Subscription) {
	for {
		select {
		case <-sub.done:
			return
		case changes := <-sub.queue:
			sub.mu.Lock()
			seq := sub.nextSeq
			sub.nextSeq = incSeq(seq)
			sub.mu.Unlock()

			if r.deliverWithRetry(sub, seq, changes) {
				sub.mu.Lock()
				sub.failed = false
				sub.mu.Unlock()
			} else {
				sub.mu.Lock()
				sub.failed = true
				sub.mu.Unlock()
			}
		}
	}
}

func (r *Registry) deliverWithRetry(sub *Subscription, seq uint32, changes []PropertyChange) bool {
	callbacks := sub.Callbacks
	if seq == 0 && len(callbacks) > 1 {
		// The initial SEQ=0 snapshot goes to the first callback URL only.
		callbacks = callbacks[:1]
	}
	for _, cb := range callbacks {
		if r.deliverOnce(cb, sub, seq, changes) {
			return true
		}
		if r.deliverOnce(cb, sub, seq, changes) { // retry once on the same callback
			return true
		}
	}
	return false
}

func (r *Registry) deliverOnce(callback string, sub *Subscription, seq uint32, changes []PropertyChange) bool {
	body := EncodeNotifyBody(changes)
	req, err := http.NewRequest("NOTIFY", callback, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SID", sub.Sid.String())
	req.Header.Set("SEQ", fmt.Sprintf("%d", seq))
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")

	transport := r.Transport
	if transport == nil {
		transport = &wire.Client{}
	}
	resp, err := transport.Do(context.Background(), req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func leaseDuration(t upnptype.Timeout) time.Duration {
	if !t.IsValid() {
		return DefaultLease
	}
	if t.Infinite {
		return DefaultLease
	}
	d := time.Duration(t.Seconds) * time.Second
	if d > DefaultLease {
		return DefaultLease
	}
	return d
}

var callbackToken = regexp.MustCompile(`<([^>]*)>`)

// ParseCallbacks extracts the `<url>` tokens from a CALLBACK header value.
func ParseCallbacks(header string) []string {
	matches := callbackToken.FindAllStringSubmatch(header, -1)
	var out []string
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
