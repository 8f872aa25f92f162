// Package host implements the device host registry (spec.md §4.8): it
// loads one or more device configurations, builds the full device model,
// assigns absolute HTTP URLs, and runs the HTTP server and SSDP endpoint
// that together advertise and serve those devices.
package host

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/upnpda/upnpda/description"
	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/gena"
	"github.com/upnpda/upnpda/internal/log"
	"github.com/upnpda/upnpda/internal/wire"
	"github.com/upnpda/upnpda/metrics"
	"github.com/upnpda/upnpda/soap"
	"github.com/upnpda/upnpda/ssdp"
	"github.com/upnpda/upnpda/upnptype"
)

// DrainDeadline bounds how long Shutdown waits for the advertiser loops
// (which send byebye) and the HTTP server goroutine to finish before
// closing sockets regardless. GENA NOTIFY senders are stopped by
// gena.Registry.Close and are not waited for.
const DrainDeadline = 5 * time.Second

// minAdvertiseInterval floors a DeviceConfig's AdvertiseInterval.
// CACHE-CONTROL max-age is reported as twice the advertise interval
// (spec.md §4.3 "re-advertises at intervals no greater than
// cacheControlMaxAge/2"), so a too-short interval would advertise an
// unreasonably short max-age.
const minAdvertiseInterval = 30 * time.Second

// actionRateLimit bounds SOAP/GENA requests per source IP, guarding the
// bounded worker pools behind it (soap.Dispatcher, gena.Server) against a
// single misbehaving control point exhausting them.
const actionRateLimit = 200

// Host owns one or more loaded device trees, their HTTP dispatch, and
// their SSDP advertisement, grounded on the teacher's server/dlna.Router
// (server/dlna/dlna.go): a mutex-guarded running flag, a cancellable
// context, and Start/Stop methods.
type Host struct {
	ServerName string

	mu       sync.RWMutex
	running  bool
	devices  []*loadedDevice
	router   chi.Router
	wireSrv  *wire.Server
	ln       net.Listener
	ssdpSock *ssdp.Socket
	endpoint *ssdp.Endpoint
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	bootID, configID int
	baseURL          string // e.g. "http://192.168.1.5:1900", filled in at Start
	startedAt        time.Time
}

type loadedDevice struct {
	tree    *devicemodel.Tree
	cfg     DeviceConfig
	genaReg *gena.Registry
	targets []ssdp.Target
	prefix  string // e.g. "/dev0", distinguishes devices sharing one Host
}

// New builds an empty Host; devices are added with Load before Start.
func New(serverName string) *Host {
	return &Host{ServerName: serverName, bootID: int(time.Now().Unix()), configID: 1}
}

// Load parses cfg's description and every service's SCPD, validating all
// intra-tree references, and registers the resulting tree with the host.
// Must be called before Start.
func (h *Host) Load(cfg DeviceConfig) error {
	factory := cfg.Factory
	if factory == nil {
		factory = devicemodel.DefaultFactory{}
	}
	tree, err := description.ParseRoot(cfg.Description, cfg.Mode, factory)
	if err != nil {
		return fmt.Errorf("host: parsing description: %w", err)
	}
	for _, svc := range tree.AllServices() {
		scpd, ok := cfg.SCPDs[svc.ServiceID]
		if !ok {
			return fmt.Errorf("host: no SCPD supplied for service %q", svc.ServiceID)
		}
		if err := description.ParseSCPD(scpd, cfg.Mode, svc); err != nil {
			return fmt.Errorf("host: parsing SCPD for service %q: %w", svc.ServiceID, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices = append(h.devices, &loadedDevice{tree: tree, cfg: cfg, genaReg: gena.NewRegistry(h.serverToken().String())})
	return nil
}

func (h *Host) serverToken() upnptype.ProductTokens {
	name := h.ServerName
	if name == "" {
		name = "upnpda"
	}
	return upnptype.ProductTokens{OS: "Go", OSVersion: "1", UPnPVersion: "1.1", Product: name, ProductVer: "1.0"}
}

// Start assigns absolute URLs to every loaded device, mounts the HTTP
// routes, binds the HTTP listener at addr, opens the SSDP endpoint on
// the chosen local interfaces, and begins advertising. It returns once
// everything is listening; shutdown happens via Shutdown.
func (h *Host) Start(ctx context.Context, addr string) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return fmt.Errorf("host: already running")
	}

	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("host: listen %s: %w", addr, err)
	}
	h.ln = ln
	port := ln.Addr().(*net.TCPAddr).Port

	localIPs, err := ChooseInterfaces()
	if err != nil {
		h.mu.Unlock()
		ln.Close()
		return fmt.Errorf("host: choosing interfaces: %w", err)
	}
	h.baseURL = fmt.Sprintf("http://%s:%d", localIPs[0].String(), port)

	h.startedAt = time.Now()
	router := chi.NewRouter()
	router.Use(httprate.LimitByIP(actionRateLimit, time.Minute))
	router.Handle("/metrics", metrics.Handler())
	router.Get("/status", h.serveStatus)
	for i, d := range h.devices {
		d.prefix = fmt.Sprintf("/dev%d", i)
		assignURLs(d.tree, h.baseURL, d.prefix)
		d.targets = buildTargets(d.tree)
		mountDevice(router, d)
	}
	h.router = router
	h.wireSrv = &wire.Server{Handler: router}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.running = true
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.wireSrv.Serve(runCtx, ln); err != nil {
			log.Warn(runCtx, "host: http server stopped", "error", err)
		}
	}()

	sock, err := ssdp.Open(localIPs)
	if err != nil {
		cancel()
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return fmt.Errorf("host: opening ssdp socket: %w", err)
	}
	h.mu.Lock()
	h.ssdpSock = sock
	h.endpoint = ssdp.NewEndpoint(runCtx, sock)
	h.mu.Unlock()

	for _, d := range h.devices {
		d := d
		adv := ssdp.NewAdvertiser(h.endpoint, &devicePublisher{host: h, device: d})
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			adv.Run(runCtx)
		}()
	}

	log.Info(ctx, "host: started", "addr", h.baseURL, "devices", len(h.devices))
	return nil
}

// Shutdown rejects new subscriptions, sends byebye advertisements
// (triggered by cancelling the advertiser's context), waits at most
// DrainDeadline for the advertiser loops and the HTTP server to finish,
// then closes the sockets. NOTIFYs still in flight from GENA senders are
// not waited for.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	for _, d := range h.devices {
		d.genaReg.Close()
	}
	cancel := h.cancel
	ln := h.ln
	sock := h.ssdpSock
	h.mu.Unlock()

	cancel() // stops the advertiser loops, which send byebye before returning

	drained := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(DrainDeadline):
		log.Warn(ctx, "host: drain deadline exceeded, closing anyway")
	}

	if ln != nil {
		ln.Close()
	}
	if sock != nil {
		sock.Close()
	}

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
	return nil
}

// serveStatus is a small human-readable diagnostic page, independent of
// /metrics' Prometheus format — useful when eyeballing a running host
// over curl.
func (h *Host) serveStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fmt.Fprintf(w, "%s, up %s\n", h.ServerName, humanize.Time(h.startedAt))
	for _, d := range h.devices {
		fmt.Fprintf(w, "  %s (%s)\n", d.tree.Root.FriendlyName, d.tree.Root.UDN.String())
	}
}

func mountDevice(router chi.Router, d *loadedDevice) {
	dispatcher := soap.NewDispatcher(d.tree, soap.DefaultWorkerPoolSize)
	genaSrv := gena.NewServer(d.tree, d.genaReg)

	for _, svc := range d.tree.AllServices() {
		handlers := ActionHandlers{}
		if ctor, ok := d.cfg.Services[svc.ServiceID]; ok {
			handlers = ctor(svc)
		}
		for action, fn := range handlers {
			dispatcher.Register(svc, action, fn)
		}
	}

	router.Route(d.prefix, func(r chi.Router) {
		r.Post("/*", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("SOAPACTION") != "" {
				dispatcher.ServeHTTP(w, r)
				return
			}
			http.NotFound(w, r)
		})
		r.MethodFunc("SUBSCRIBE", "/*", genaSrv.ServeHTTP)
		r.MethodFunc("UNSUBSCRIBE", "/*", genaSrv.ServeHTTP)

		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			serveStatic(w, r, d)
		})
	})
}

func serveStatic(w http.ResponseWriter, r *http.Request, d *loadedDevice) {
	if r.URL.Path == descriptionPath(d.prefix) {
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		w.Write(d.cfg.Description)
		return
	}
	for id, scpd := range d.cfg.SCPDs {
		if r.URL.Path == scpdPath(d.prefix, id) {
			w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
			w.Write(scpd)
			return
		}
	}
	for rel, data := range d.cfg.Icons {
		if r.URL.Path == iconPath(d.prefix, rel) {
			w.Write(data)
			return
		}
	}
	http.NotFound(w, r)
}
