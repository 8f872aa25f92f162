// Command upnphostd hosts a single example BinaryLight device, wiring
// together host.Host exactly as a real device host would: load the
// description, register action handlers, start, and shut down cleanly
// on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upnpda/upnpda/host"
	"github.com/upnpda/upnpda/internal/log"
)

func main() {
	addr := flag.String("addr", ":0", "listen address, e.g. :1900")
	flag.Parse()

	h := host.New("upnphostd/1.0")
	err := h.Load(host.DeviceConfig{
		Description: []byte(deviceXML),
		SCPDs:       map[string][]byte{"urn:upnp-org:serviceId:SwitchPower": []byte(switchPowerSCPD)},
		Services: map[string]host.ServiceConstructor{
			"urn:upnp-org:serviceId:SwitchPower": newSwitchPower,
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "upnphostd:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.Start(ctx, *addr); err != nil {
		fmt.Fprintln(os.Stderr, "upnphostd:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info(context.Background(), "upnphostd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "upnphostd: shutdown:", err)
		os.Exit(1)
	}
}
