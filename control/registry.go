package control

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/upnpda/upnpda/description"
	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/gena"
	"github.com/upnpda/upnpda/internal/log"
	"github.com/upnpda/upnpda/internal/wire"
	"github.com/upnpda/upnpda/metrics"
	"github.com/upnpda/upnpda/ssdp"
	"github.com/upnpda/upnpda/upnptype"
)

// Mode selects strict or loose description/SCPD parsing for every build
// this registry performs.
type Mode = description.Mode

// Registry discovers UPnP root devices over SSDP, builds their device
// model, and tracks liveness — spec.md §4.9. Entries expire via a
// ttlcache keyed by UDN, one entry per `cacheControlMaxAge` window;
// eviction and explicit byebye both route through the same offline path.
type Registry struct {
	endpoint  *ssdp.Endpoint
	transport *wire.Client
	mode      Mode

	cache *ttlcache.Cache[string, *Entry]

	mu      sync.Mutex
	pending map[string]*buildState // UDN string -> in-flight build

	// Events receives one DeviceEvent per online/offline transition.
	// Buffered (64); while the buffer is full, further transitions are
	// dropped with a logged warning, so a consumer must keep draining it.
	Events chan DeviceEvent
}

// buildState tracks one in-flight build task: the locations discovered
// for its UDN so far (appended to if more alive/search-response messages
// arrive mid-build) and whether a build goroutine is already running for
// it (spec.md §4.9 "If a build for that UDN is already running, append
// the new location to its location list and drop the message").
type buildState struct {
	mu        sync.Mutex
	locations []string
}

// NewRegistry builds a Registry over endpoint. The caller must call Run
// to begin processing events, and should send the initial M-SEARCH via
// SearchAll once Run is running.
func NewRegistry(endpoint *ssdp.Endpoint, mode Mode) *Registry {
	r := &Registry{
		endpoint:  endpoint,
		transport: &wire.Client{},
		mode:      mode,
		cache:     ttlcache.New[string, *Entry](),
		pending:   map[string]*buildState{},
		Events:    make(chan DeviceEvent, 64),
	}
	r.cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Entry]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		r.goOffline(item.Value())
	})
	return r
}

// Run drains SSDP events until ctx is cancelled (spec.md §4.9's main
// loop). It starts the ttlcache's own expiry goroutine as part of the
// same lifetime.
func (r *Registry) Run(ctx context.Context) {
	go r.cache.Start()
	defer r.cache.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.endpoint.Events():
			r.handle(ctx, ev)
		}
	}
}

// SearchAll sends one M-SEARCH with ST=upnp:rootdevice, MX=1, per local
// unicast socket (spec.md §4.9 "Initial discovery").
func (r *Registry) SearchAll(ctx context.Context) {
	st := upnptype.ParseDiscoveryType("upnp:rootdevice")
	payload := ssdp.EncodeSearchRequest(ssdp.SearchRequest{MX: 1, ST: st})
	for _, localIP := range r.endpoint.Socket().Unicasts() {
		if err := r.endpoint.Socket().SendMulticast(localIP, payload); err != nil {
			log.Warn(ctx, "control: search failed", "local", localIP, "error", err)
			continue
		}
		metrics.SSDPMessages.WithLabelValues(ssdp.KindSearchRequest.String(), "out").Inc()
	}
}

func (r *Registry) handle(ctx context.Context, ev ssdp.Event) {
	switch ev.Message.Kind {
	case ssdp.KindAlive:
		a := ev.Message.Alive
		r.onSeen(ctx, a.USN.UDN(), a.Location, a.MaxAge)
	case ssdp.KindSearchResponse:
		sr := ev.Message.SearchResponse
		r.onSeen(ctx, sr.USN.UDN(), sr.Location, sr.MaxAge)
	case ssdp.KindByeBye:
		r.onByeBye(ev.Message.ByeBye.USN.UDN())
	case ssdp.KindUpdate:
		u := ev.Message.Update
		r.onUpdate(u.USN.UDN(), u.Location)
	}
}

// onUpdate handles an ssdp:update NOTIFY for an already-known device: it
// refreshes the entry's location list and restarts its expiry window
// without toggling the online signal (SUPPLEMENTED per herqq/hupnp; see
// DESIGN.md). An update for a UDN this registry has not yet built is
// ignored rather than used to kick off a build from a single location.
func (r *Registry) onUpdate(udn upnptype.UDN, location string) {
	if !udn.IsValid() {
		return
	}
	key := udn.String()
	item := r.cache.Get(key)
	if item == nil {
		return
	}
	entry := item.Value()
	entry.addLocation(location)
	r.cache.Set(key, entry, item.TTL())
}

// onSeen handles both alive and search-response messages identically
// (spec.md §4.9 "200 OK (search response) -> identical handling to
// alive").
func (r *Registry) onSeen(ctx context.Context, udn upnptype.UDN, location string, maxAge int) {
	if !udn.IsValid() {
		return
	}
	key := udn.String()

	if item := r.cache.Get(key); item != nil {
		entry := item.Value()
		entry.addLocation(location)
		r.cache.Set(key, entry, time.Duration(maxAge)*time.Second)
		if !entry.Online() {
			entry.setOnline(true)
			r.emit(udn, entry, true)
		}
		return
	}

	r.mu.Lock()
	bs, inFlight := r.pending[key]
	if inFlight {
		bs.mu.Lock()
		bs.locations = append(bs.locations, location)
		bs.mu.Unlock()
		r.mu.Unlock()
		return
	}
	bs = &buildState{locations: []string{location}}
	r.pending[key] = bs
	r.mu.Unlock()

	go r.runBuild(ctx, udn, bs, maxAge)
}

func (r *Registry) runBuild(ctx context.Context, udn upnptype.UDN, bs *buildState, maxAge int) {
	defer func() {
		r.mu.Lock()
		delete(r.pending, udn.String())
		r.mu.Unlock()
	}()

	bs.mu.Lock()
	locations := append([]string(nil), bs.locations...)
	bs.mu.Unlock()

	tree, err := buildTree(ctx, locations, r.transport, r.mode)
	if err != nil {
		log.Warn(ctx, "control: build failed, device returns to unknown set", "udn", udn.String(), "error", err)
		return
	}

	bs.mu.Lock()
	locations = append([]string(nil), bs.locations...) // may have grown during the build
	bs.mu.Unlock()

	entry := &Entry{UDN: udn, Tree: tree, Locations: locations}
	entry.setOnline(true)
	r.cache.Set(udn.String(), entry, time.Duration(maxAge)*time.Second)
	r.emit(udn, entry, true)
}

func (r *Registry) onByeBye(udn upnptype.UDN) {
	if !udn.IsValid() {
		return
	}
	item := r.cache.Get(udn.String())
	if item == nil {
		return
	}
	entry := item.Value()
	r.cache.Delete(udn.String())
	r.goOffline(entry)
}

// goOffline cancels every subscription the entry holds (best effort)
// and signals offline (spec.md §4.9 "cancel all its subscriptions —
// best effort — unsubscribe with a short timeout").
func (r *Registry) goOffline(entry *Entry) {
	if entry == nil || !entry.Online() {
		return
	}
	entry.setOnline(false)

	entry.mu.Lock()
	subs := entry.subs
	entry.subs = nil
	entry.mu.Unlock()
	for _, cancel := range subs {
		cancel() // stops the gena.Client's Run loop, which unsubscribes on its way out
	}

	r.emit(entry.UDN, entry, false)
}

// Subscribe starts a GENA subscription to svc through entry, running the
// client's subscribe/renew state machine in its own goroutine until the
// caller's ctx is cancelled or the entry goes offline. The returned
// *gena.Client can be inspected for State().
func (r *Registry) Subscribe(ctx context.Context, entry *Entry, svc *devicemodel.Service, callbackURL string, handler gena.EventHandler) *gena.Client {
	client := gena.NewClient(svc.EventSubURL, callbackURL, handler)
	subCtx, cancel := context.WithCancel(ctx)

	entry.mu.Lock()
	if entry.subs == nil {
		entry.subs = map[string]context.CancelFunc{}
	}
	entry.subs[svc.EventSubURL] = cancel
	entry.mu.Unlock()

	go client.Run(subCtx)
	return client
}

func (r *Registry) emit(udn upnptype.UDN, entry *Entry, online bool) {
	if online {
		metrics.ControlPointDevices.Inc()
	} else {
		metrics.ControlPointDevices.Dec()
	}
	select {
	case r.Events <- DeviceEvent{UDN: udn, Entry: entry, Online: online, At: time.Now()}:
	default:
		log.Warn(context.Background(), "control: events channel full, dropping transition", "udn", udn.String())
	}
}

// Lookup returns the live entry for udn, if any.
func (r *Registry) Lookup(udn upnptype.UDN) (*Entry, bool) {
	item := r.cache.Get(udn.String())
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}
