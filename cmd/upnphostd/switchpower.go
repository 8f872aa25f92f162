package main

import (
	"context"
	"fmt"

	"github.com/upnpda/upnpda/devicemodel"
	"github.com/upnpda/upnpda/host"
)

// newSwitchPower implements UDA 1.1's standard SwitchPower:1 service
// against the Target/Status state variables declared in switchPowerSCPD.
func newSwitchPower(svc *devicemodel.Service) host.ActionHandlers {
	return host.ActionHandlers{
		"SetTarget": func(ctx context.Context, in map[string]string) (map[string]string, error) {
			target, ok := svc.StateVariableByName("Target")
			if !ok {
				return nil, fmt.Errorf("switchpower: Target state variable missing")
			}
			status, ok := svc.StateVariableByName("Status")
			if !ok {
				return nil, fmt.Errorf("switchpower: Status state variable missing")
			}
			target.SetCurrentValue(in["newTargetValue"])
			status.SetCurrentValue(in["newTargetValue"])
			return map[string]string{}, nil
		},
		"GetTarget": func(ctx context.Context, in map[string]string) (map[string]string, error) {
			target, _ := svc.StateVariableByName("Target")
			return map[string]string{"RetTargetValue": target.CurrentValue()}, nil
		},
		"GetStatus": func(ctx context.Context, in map[string]string) (map[string]string, error) {
			status, _ := svc.StateVariableByName("Status")
			return map[string]string{"ResultStatus": status.CurrentValue()}, nil
		},
	}
}
