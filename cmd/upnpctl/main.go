// Command upnpctl discovers UPnP root devices on the local network and
// optionally invokes one action against a chosen device's service,
// exercising the control package and soap.Client end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upnpda/upnpda/control"
	"github.com/upnpda/upnpda/description"
	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/host"
	"github.com/upnpda/upnpda/soap"
	"github.com/upnpda/upnpda/ssdp"
	"github.com/upnpda/upnpda/upnptype"
)

func main() {
	discoverFor := flag.Duration("for", 3*time.Second, "how long to listen for advertisements/search responses before reporting")
	udnFlag := flag.String("udn", "", "if set, invoke an action against this device's UDN instead of just listing")
	serviceID := flag.String("service", "", "serviceId to invoke against (required with -udn)")
	action := flag.String("action", "", "action name to invoke (required with -udn)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	localIPs, err := host.ChooseInterfaces()
	if err != nil {
		fatalf("choosing interfaces: %v", err)
	}
	sock, err := ssdp.Open(localIPs)
	if err != nil {
		fatalf("opening ssdp socket: %v", err)
	}
	defer sock.Close()
	endpoint := ssdp.NewEndpoint(ctx, sock)

	reg := control.NewRegistry(endpoint, description.Loose)
	go reg.Run(ctx)
	reg.SearchAll(ctx)

	discovered := map[upnptype.UDN]*control.Entry{}
	timeout := time.After(*discoverFor)
collect:
	for {
		select {
		case ev := <-reg.Events:
			if ev.Online {
				discovered[ev.UDN] = ev.Entry
			} else {
				delete(discovered, ev.UDN)
			}
		case <-timeout:
			break collect
		case <-ctx.Done():
			return
		}
	}

	if *udnFlag == "" {
		for udn, entry := range discovered {
			fmt.Printf("%s  %s\n", udn.String(), entry.Tree.Root.FriendlyName)
		}
		return
	}

	entry, ok := discovered[upnptype.ParseUDN(*udnFlag)]
	if !ok {
		fatalf("device %s not found in this discovery window", *udnFlag)
	}
	if *serviceID == "" || *action == "" {
		fatalf("-service and -action are required with -udn")
	}
	svc, ok := findService(entry, *serviceID)
	if !ok {
		fatalf("service %s not found on device %s", *serviceID, *udnFlag)
	}

	client := soap.NewClient(svc)
	client.Locations = entry.Locations
	out, err := client.Invoke(ctx, *action, nil)
	if err != nil {
		fatalf("invoking %s: %v", *action, err)
	}
	for k, v := range out {
		fmt.Printf("%s = %s\n", k, v)
	}
}

func findService(entry *control.Entry, serviceID string) (*devicemodel.Service, bool) {
	for _, d := range entry.Tree.AllDevices() {
		for _, svc := range d.Services {
			if svc.ServiceID == serviceID {
				return svc, true
			}
		}
	}
	return nil, false
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "upnpctl: "+format+"\n", args...)
	os.Exit(1)
}
