package gena

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/upnpda/upnpda/internal/log"
	"github.com/upnpda/upnpda/internal/wire"
	"github.com/upnpda/upnpda/metrics"
	"github.com/upnpda/upnpda/upnptype"
)

// State is a position in the client subscription state machine drawn in
// spec.md §4.7.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
	StateRenewing
	StateResubscribe
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateRenewing:
		return "renewing"
	case StateResubscribe:
		return "resubscribe"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// retryDelay is the fixed backoff applied after a failed (re)subscribe
// attempt, per spec.md §4.7's state diagram ("retry after 30 s").
const retryDelay = 30 * time.Second

// EventHandler receives the decoded property changes from one NOTIFY.
type EventHandler func(changes []PropertyChange)

// Client drives one control-point-side subscription through its state
// machine: subscribe, renew at lease/2, resubscribe (dropping the SID) on
// renew failure, retrying after a fixed delay on outright failure —
// spec.md §4.7.
type Client struct {
	EventURL    string // the service's absolute event subscription URL
	CallbackURL string // this control point's absolute callback URL
	Handler     EventHandler
	Transport   *wire.Client

	mu          sync.Mutex
	state       State
	sid         upnptype.Sid
	lease       time.Duration
	expectedSeq uint32
	sawFirst    bool
}

// NewClient builds a Client in the Unsubscribed state.
func NewClient(eventURL, callbackURL string, handler EventHandler) *Client {
	return &Client{EventURL: eventURL, CallbackURL: callbackURL, Handler: handler, Transport: &wire.Client{}, state: StateUnsubscribed}
}

// State reports the client's current position in the state machine.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the subscribe/renew loop until ctx is cancelled, at which
// point it unsubscribes if a SID is currently held.
func (c *Client) Run(ctx context.Context) {
	defer c.unsubscribeOnExit()
	everSubscribed := false
	for {
		c.setState(StateSubscribing)
		if err := c.subscribe(ctx); err != nil {
			log.Warn(ctx, "gena: subscribe failed, will retry", "url", c.EventURL, "error", err)
			c.setState(StateFailed)
			if !sleepOrDone(ctx, retryDelay) {
				return
			}
			continue
		}
		if !everSubscribed {
			everSubscribed = true
			metrics.ActiveSubscriptions.WithLabelValues("control_point").Inc()
			defer metrics.ActiveSubscriptions.WithLabelValues("control_point").Dec()
		}
		c.setState(StateActive)
		if !c.waitAndRenewLoop(ctx) {
			return
		}
	}
}

// waitAndRenewLoop sleeps until lease/2, then renews repeatedly; it
// returns false when ctx is done, true when a resubscribe from scratch is
// needed (the caller's outer loop starts over).
func (c *Client) waitAndRenewLoop(ctx context.Context) bool {
	for {
		c.mu.Lock()
		lease := c.lease
		c.mu.Unlock()
		if !sleepOrDone(ctx, lease/2) {
			return false
		}
		c.setState(StateRenewing)
		if err := c.renew(ctx); err != nil {
			log.Warn(ctx, "gena: renew failed, resubscribing", "url", c.EventURL, "error", err)
			c.setState(StateResubscribe)
			c.mu.Lock()
			c.sid = upnptype.Sid{}
			c.mu.Unlock()
			return true
		}
		c.setState(StateActive)
	}
}

func (c *Client) unsubscribeOnExit() {
	c.mu.Lock()
	sid := c.sid
	c.mu.Unlock()
	if !sid.IsValid() {
		return
	}
	req, err := http.NewRequest("UNSUBSCRIBE", c.EventURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("SID", sid.String())
	_, _ = c.transport().Do(context.Background(), req)
}

func (c *Client) subscribe(ctx context.Context) error {
	req, err := http.NewRequest("SUBSCRIBE", c.EventURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("CALLBACK", fmt.Sprintf("<%s>", c.CallbackURL))
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", upnptype.NewTimeout(int(DefaultLease/time.Second)).String())
	return c.doSubscribeLike(ctx, req)
}

func (c *Client) renew(ctx context.Context) error {
	c.mu.Lock()
	sid := c.sid
	c.mu.Unlock()
	req, err := http.NewRequest("SUBSCRIBE", c.EventURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("SID", sid.String())
	req.Header.Set("TIMEOUT", upnptype.NewTimeout(int(DefaultLease/time.Second)).String())
	return c.doSubscribeLike(ctx, req)
}

func (c *Client) doSubscribeLike(ctx context.Context, req *http.Request) error {
	resp, err := c.transport().Do(ctx, req)
	if err != nil {
		return fmt.Errorf("gena: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gena: unexpected status %d", resp.StatusCode)
	}
	sid := upnptype.ParseSid(resp.Header.Get("SID"))
	if !sid.IsValid() {
		return fmt.Errorf("gena: response missing a valid SID")
	}
	timeout := upnptype.ParseTimeout(resp.Header.Get("TIMEOUT"))

	c.mu.Lock()
	c.sid = sid
	c.lease = leaseDuration(timeout)
	c.sawFirst = false
	c.mu.Unlock()
	return nil
}

func (c *Client) transport() *wire.Client {
	if c.Transport == nil {
		return &wire.Client{}
	}
	return c.Transport
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ServeHTTP receives a NOTIFY delivered to this client's callback URL. A
// mismatched SID is answered 412 and dropped; a SEQ that does not match
// the next expected value forces a resubscribe (drop SID, subscribe
// anew) — spec.md §4.7.
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sid := upnptype.ParseSid(r.Header.Get("SID"))
	seqHeader := r.Header.Get("SEQ")

	c.mu.Lock()
	current := c.sid
	expected := c.expectedSeq
	sawFirst := c.sawFirst
	c.mu.Unlock()

	if !sid.IsValid() || !sid.Equal(current) {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	var seq uint32
	if _, err := fmt.Sscanf(seqHeader, "%d", &seq); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if sawFirst && seq != expected {
		w.WriteHeader(http.StatusPreconditionFailed)
		c.mu.Lock()
		c.sid = upnptype.Sid{}
		c.mu.Unlock()
		log.Warn(r.Context(), "gena: SEQ mismatch, forcing resubscribe", "expected", expected, "got", seq)
		return
	}

	changes, err := ParseNotifyBody(mustReadAll(r))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	c.expectedSeq = incSeq(seq)
	c.sawFirst = true
	c.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	if c.Handler != nil {
		c.Handler(changes)
	}
}

func mustReadAll(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := r.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	return buf
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
