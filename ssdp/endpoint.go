package ssdp

import (
	"context"
	"net"

	"github.com/upnpda/upnpda/internal/log"
	"github.com/upnpda/upnpda/metrics"
)

// Event is a decoded SSDP datagram paired with its sender, delivered to the
// registry's control thread (spec.md §5: "the control thread never blocks
// on a network socket; it only observes completions posted to it").
type Event struct {
	Message Message
	From    *net.UDPAddr
	LocalIP string // which unicast socket received it; "" for multicast
}

// Endpoint runs the read loops over a Socket and publishes decoded events
// on a channel. It performs no interpretation of message semantics —
// search-answering and advertisement scheduling are layered on top by
// Responder/Advertiser, and control-point interpretation lives in the
// control package.
type Endpoint struct {
	sock   *Socket
	events chan Event
}

// NewEndpoint starts the read loops for sock. The returned Endpoint must be
// closed by cancelling ctx, which stops the read loops; the Events()
// channel itself is never closed.
func NewEndpoint(ctx context.Context, sock *Socket) *Endpoint {
	e := &Endpoint{sock: sock, events: make(chan Event, 64)}
	var loops int
	loops++
	go e.readLoop(ctx, "", func(buf []byte) (int, *net.UDPAddr, error) {
		return sock.ReadMulticast(buf)
	})
	for _, ip := range sock.Unicasts() {
		ip := ip
		loops++
		go e.readLoop(ctx, ip, func(buf []byte) (int, *net.UDPAddr, error) {
			return sock.ReadUnicast(ip, buf)
		})
	}
	go func() {
		<-ctx.Done()
	}()
	return e
}

func (e *Endpoint) readLoop(ctx context.Context, localIP string, read func([]byte) (int, *net.UDPAddr, error)) {
	buf := make([]byte, MaxDatagramSize+1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, from, err := read(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warn(ctx, "ssdp: read failed", "local", localIP, "error", err)
				continue
			}
		}
		msg := Decode(buf[:n])
		if msg.Kind == KindInvalid {
			continue
		}
		metrics.SSDPMessages.WithLabelValues(msg.Kind.String(), "in").Inc()
		select {
		case e.events <- Event{Message: msg, From: from, LocalIP: localIP}:
		case <-ctx.Done():
			return
		}
	}
}

// Events returns the channel of decoded, valid messages.
func (e *Endpoint) Events() <-chan Event { return e.events }

// Socket returns the underlying transport, for senders that need to reply
// on a specific local unicast socket.
func (e *Endpoint) Socket() *Socket { return e.sock }
