package minerapi

import (
	"context"
	"time"
)

// identityChain is the command fallback sequence used during discovery. No
// single command reliably returns the MAC across all firmware/model
// combinations in the fleet, so the chain is ordered cheapest and
// most-commonly-successful first and stops as soon as a MAC turns up
var identityChain = []string{"summary", "stats", "get_miner_info", "devs", "edevs"}

// Discover probes one address for identity. The primary summary response also
// provides the hashrate snapshot; later chain steps only fill in identity gaps.
// Returns ErrNoIdentity wrapped errors only when the device never answered the
// primary command, a reachable device with no MAC is still a discovery
func (c *Client) Discover(ctx context.Context, addr Address, timeout time.Duration) (*DiscoveredDevice, error) {
	primary, err := c.Command(ctx, addr, identityChain[0], timeout)
	if err != nil {
		return nil, err
	}

	telemetry := ExtractTelemetry(primary)
	model, serial, mac := ExtractIdentity(primary)

	for _, cmd := range identityChain[1:] {
		if mac != "" {
			break
		}
		payload, err := c.Command(ctx, addr, cmd, timeout)
		if err != nil {
			continue
		}
		fbModel, fbSerial, fbMAC := ExtractIdentity(payload)
		if mac == "" {
			mac = fbMAC
		}
		if serial == "" {
			serial = fbSerial
		}
		if model == "" || model == "Unknown" {
			if fbModel != "" && fbModel != "Unknown" {
				model = fbModel
			}
		}
	}

	return &DiscoveredDevice{
		Address:     addr,
		Model:       model,
		HashrateGHS: telemetry.HashrateGHS,
		MACAddress:  mac,
		Serial:      serial,
	}, nil
}
