package ssdp

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/upnpda/upnpda/internal/log"
	"github.com/upnpda/upnpda/metrics"
	"github.com/upnpda/upnpda/upnptype"
)

// Publisher supplies everything the Advertiser needs to know about the
// device tree being advertised. The device host implements this against
// its live devicemodel tree; ssdp itself has no notion of devices.
type Publisher interface {
	Targets() []Target
	Location(localIP string) string
	Server() upnptype.ProductTokens
	CacheControlMaxAge() int
	BootID() int
	ConfigID() int
}

// Advertiser drives the NOTIFY advertisement schedule and answers incoming
// M-SEARCH requests, per spec.md §4.3 "Advertisement schedule" and "Search
// answering". It owns no sockets directly; it sends through the Endpoint's
// Socket and consumes the Endpoint's Events for M-SEARCH requests only
// (NOTIFY events on the same Endpoint are for control points, not us, and
// are ignored here).
type Advertiser struct {
	endpoint  *Endpoint
	publisher Publisher
	limiter   *rate.Limiter
}

// NewAdvertiser builds an Advertiser. The limiter bounds outbound
// retransmission bursts (spec.md §5's general "bounded worker pool"
// protection extended to the advertisement path, mirroring the teacher's
// rate.Limiter use for outbound bursts).
func NewAdvertiser(endpoint *Endpoint, publisher Publisher) *Advertiser {
	return &Advertiser{
		endpoint:  endpoint,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Limit(50), 50),
	}
}

// Run sends the initial advertisement burst, then re-advertises at
// jittered intervals no greater than cacheControlMaxAge/2 until ctx is
// cancelled, at which point it sends byebye for every target and returns.
func (a *Advertiser) Run(ctx context.Context) {
	a.advertiseBurst(ctx)

	// AdvertiseJitter spreads by ±10%; centring on 10/11 of the bound keeps
	// every interval at or below cacheControlMaxAge/2.
	interval := time.Duration(a.publisher.CacheControlMaxAge()) * time.Second / 2 * 10 / 11
	timer := time.NewTimer(AdvertiseJitter(interval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.sendByeByeAll(context.Background())
			return
		case ev := <-a.endpoint.Events():
			if ev.Message.Kind == KindSearchRequest {
				a.answer(ctx, ev)
			}
		case <-timer.C:
			a.advertiseBurst(ctx)
			timer.Reset(AdvertiseJitter(interval))
		}
	}
}

// advertiseBurst sends 3 NOTIFY/alive per target, per local interface,
// spaced to stay under the rate limiter: 3 × (3 + 2·embeddedDevices +
// services) NOTIFY/alive messages per interface.
func (a *Advertiser) advertiseBurst(ctx context.Context) {
	targets := a.publisher.Targets()
	for _, localIP := range a.endpoint.Socket().Unicasts() {
		loc := a.publisher.Location(localIP)
		for i := 0; i < 3; i++ {
			for _, t := range targets {
				if err := a.limiter.Wait(ctx); err != nil {
					return
				}
				payload := EncodeAlive(Alive{
					MaxAge: a.publisher.CacheControlMaxAge(), Location: loc,
					NT: t.NT, Server: a.publisher.Server(), USN: t.USN,
					BootID: a.publisher.BootID(), ConfigID: a.publisher.ConfigID(),
				})
				if err := a.endpoint.Socket().SendMulticast(localIP, payload); err != nil {
					log.Warn(ctx, "ssdp: send alive failed", "error", err)
				} else {
					metrics.SSDPMessages.WithLabelValues(KindAlive.String(), "out").Inc()
				}
			}
		}
	}
}

func (a *Advertiser) sendByeByeAll(ctx context.Context) {
	targets := a.publisher.Targets()
	for _, localIP := range a.endpoint.Socket().Unicasts() {
		for _, t := range targets {
			payload := EncodeByeBye(ByeBye{NT: t.NT, USN: t.USN, BootID: a.publisher.BootID(), ConfigID: a.publisher.ConfigID()})
			if err := a.endpoint.Socket().SendMulticast(localIP, payload); err != nil {
				log.Warn(ctx, "ssdp: send byebye failed", "error", err)
			} else {
				metrics.SSDPMessages.WithLabelValues(KindByeBye.String(), "out").Inc()
			}
		}
	}
}

// answer replies to an M-SEARCH with one unicast 200 OK per matching
// target, after the per-response random delay in [0, MX] spec.md requires.
func (a *Advertiser) answer(ctx context.Context, ev Event) {
	req := ev.Message.SearchRequest
	matches := MatchTargets(req.ST, a.publisher.Targets())
	if len(matches) == 0 {
		return
	}
	localIP := ev.LocalIP
	if localIP == "" && len(a.endpoint.Socket().Unicasts()) > 0 {
		localIP = a.endpoint.Socket().Unicasts()[0]
	}
	loc := a.publisher.Location(localIP)
	for _, t := range matches {
		delay := SearchDelay(req.MX)
		// For ssdp:all the response ST echoes the matched target's own NT
		// (UDA 1.1 §1.3.3); for every other ST the response echoes the
		// request verbatim.
		st := req.ST
		if req.ST.Kind() == upnptype.ResourceAll {
			st = t.NT
		}
		go func(t Target, st upnptype.DiscoveryType) {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			payload := EncodeSearchResponse(SearchResponse{
				MaxAge: a.publisher.CacheControlMaxAge(), Location: loc,
				Server: a.publisher.Server(), ST: st, USN: t.USN,
				BootID: a.publisher.BootID(), ConfigID: a.publisher.ConfigID(),
			})
			if err := a.endpoint.Socket().SendUnicast(localIP, ev.From, payload); err != nil {
				log.Warn(ctx, "ssdp: send search response failed", "error", err)
			} else {
				metrics.SSDPMessages.WithLabelValues(KindSearchResponse.String(), "out").Inc()
			}
		}(t, st)
	}
}
