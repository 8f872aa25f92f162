package control

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/upnpda/upnpda/description"
	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/internal/wire"
)

// FetchPoolSize bounds concurrent SCPD/icon fetches within a single build
// task (spec.md §4.9 "bounded by a small pool, e.g. 4").
const FetchPoolSize = 4

// buildTree fetches the root description from the first reachable
// location, then concurrently fetches every service's SCPD, assembling a
// complete Tree. Any failure — of the description fetch, a parse, or any
// SCPD fetch/parse — discards the whole build (spec.md §4.9 "on any
// failure the build is discarded").
func buildTree(ctx context.Context, locations []string, transport *wire.Client, mode description.Mode) (*devicemodel.Tree, error) {
	var descBody []byte
	var descLocation string
	var lastErr error
	for _, loc := range locations {
		body, err := fetch(ctx, transport, loc)
		if err != nil {
			lastErr = err
			continue
		}
		descBody = body
		descLocation = loc
		lastErr = nil
		break
	}
	if descBody == nil {
		return nil, fmt.Errorf("control: fetching description: %w", lastErr)
	}

	tree, err := description.ParseRoot(descBody, mode, devicemodel.DefaultFactory{})
	if err != nil {
		return nil, fmt.Errorf("control: parsing description: %w", err)
	}

	services := tree.AllServices()
	sem := semaphore.NewWeighted(FetchPoolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs *multierror.Error

	for _, svc := range services {
		svc := svc
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = multierror.Append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			scpdURL := resolve(descLocation, svc.SCPDURL)
			body, err := fetch(ctx, transport, scpdURL)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("service %q: %w", svc.ServiceID, err))
				mu.Unlock()
				return
			}
			if err := description.ParseSCPD(body, mode, svc); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("service %q: %w", svc.ServiceID, err))
				mu.Unlock()
			}
		}()
	}

	for _, dev := range tree.AllDevices() {
		dev := dev
		for i := range dev.Icons {
			i := i
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				break
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				iconURL := resolve(descLocation, dev.Icons[i].URL)
				if _, err := fetch(ctx, transport, iconURL); err != nil {
					mu.Lock()
					errs = multierror.Append(errs, fmt.Errorf("icon %q: %w", iconURL, err))
					mu.Unlock()
					return
				}
				dev.Icons[i].URL = iconURL
			}()
		}
	}
	wg.Wait()

	if errs.ErrorOrNil() != nil {
		return nil, fmt.Errorf("control: building tree: %w", errs.ErrorOrNil())
	}
	return tree, nil
}

func fetch(ctx context.Context, transport *wire.Client, url string) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	resp, err := transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// resolve turns a possibly-relative SCPD/control/eventSub URL into an
// absolute one against the location the description was fetched from
// (UDA 1.1 description URLs may be relative; spec.md §4.4 stub fields are
// copied verbatim from the wire).
func resolve(base, ref string) string {
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}
