package gena

import (
	"net/http"
	"time"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/upnptype"
)

// Server is the http.Handler side of a Registry: it answers SUBSCRIBE/
// UNSUBSCRIBE requests routed by the device host to a service's event
// subscription URL — spec.md §4.7.
type Server struct {
	Tree     *devicemodel.Tree
	Registry *Registry
}

// NewServer builds a Server over tree, publishing/serving subscriptions
// through registry.
func NewServer(tree *devicemodel.Tree, registry *Registry) *Server {
	return &Server{Tree: tree, Registry: registry}
}

// ServeHTTP handles SUBSCRIBE and UNSUBSCRIBE. Any other method is
// rejected with 405, matching chi's convention for unmatched methods on a
// route this handler owns outright.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.Tree.ServiceByEventSubURL(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case "SUBSCRIBE":
		s.handleSubscribe(w, r, svc)
	case "UNSUBSCRIBE":
		s.handleUnsubscribe(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, svc *devicemodel.Service) {
	sidHeader := r.Header.Get("SID")
	callbackHeader := r.Header.Get("CALLBACK")
	ntHeader := r.Header.Get("NT")

	hasSid := sidHeader != ""
	hasNewSub := callbackHeader != "" || ntHeader != ""

	if hasSid && hasNewSub {
		http.Error(w, "incompatible header fields", http.StatusBadRequest)
		return
	}

	timeout := upnptype.ParseTimeout(r.Header.Get("TIMEOUT"))

	var sub *Subscription
	if hasSid {
		sid := upnptype.ParseSid(sidHeader)
		if !sid.IsValid() {
			http.Error(w, "malformed SID", http.StatusPreconditionFailed)
			return
		}
		found, err := s.Registry.Renew(sid, timeout)
		if err != nil {
			http.Error(w, "unknown subscription", http.StatusPreconditionFailed)
			return
		}
		sub = found
	} else {
		if ntHeader != "upnp:event" {
			http.Error(w, "NT must be upnp:event", http.StatusBadRequest)
			return
		}
		callbacks := ParseCallbacks(callbackHeader)
		if len(callbacks) == 0 {
			http.Error(w, "CALLBACK must list at least one url", http.StatusBadRequest)
			return
		}
		created, err := s.Registry.Subscribe(r.Context(), svc, callbacks, timeout)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sub = created
	}

	w.Header().Set("SID", sub.Sid.String())
	w.Header().Set("TIMEOUT", remainingTimeout(sub).String())
	w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
	if s.Registry.Server != "" {
		w.Header().Set("SERVER", s.Registry.Server)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sid := upnptype.ParseSid(r.Header.Get("SID"))
	if !sid.IsValid() {
		http.Error(w, "malformed SID", http.StatusPreconditionFailed)
		return
	}
	if err := s.Registry.Unsubscribe(sid); err != nil {
		http.Error(w, "unknown subscription", http.StatusPreconditionFailed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func remainingTimeout(sub *Subscription) upnptype.Timeout {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	remaining := time.Until(sub.Expiry)
	if remaining <= 0 {
		remaining = time.Second
	}
	return upnptype.NewTimeout(int(remaining / time.Second))
}
