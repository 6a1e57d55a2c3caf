package minerapi

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout     = errors.New("probe timed out")
	ErrUnreachable = errors.New("device unreachable")
	ErrNoIdentity  = errors.New("no identity fields in device responses")
)

// Address identifies a physical device on the network
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Telemetry is one poll's full metric set for a device. Metrics the firmware
// did not report are zero, never null, so downstream sums and averages stay total
type Telemetry struct {
	HashrateGHS        float64 `json:"hashrateGHS"`
	FactoryHashrateGHS float64 `json:"factoryHashrateGHS"`

	BoardTempMin float64 `json:"boardTempMin"`
	BoardTempMax float64 `json:"boardTempMax"`
	BoardTempAvg float64 `json:"boardTempAvg"`
	ChipTempMin  float64 `json:"chipTempMin"`
	ChipTempMax  float64 `json:"chipTempMax"`
	ChipTempAvg  float64 `json:"chipTempAvg"`
	EnvTemp      float64 `json:"envTemp"`

	FanInRPM  float64 `json:"fanInRPM"`
	FanOutRPM float64 `json:"fanOutRPM"`

	PowerW      float64 `json:"powerW"`
	PowerLimitW float64 `json:"powerLimitW"`
	PowerMode   string  `json:"powerMode"`

	ElapsedSec float64 `json:"elapsedSec"`

	Accepted      float64 `json:"accepted"`
	Rejected      float64 `json:"rejected"`
	PoolRejectPct float64 `json:"poolRejectPct"`
	PoolStalePct  float64 `json:"poolStalePct"`

	// watts per terahash
	Efficiency float64 `json:"efficiency"`

	FreqAvg    float64 `json:"freqAvg"`
	FreqTarget float64 `json:"freqTarget"`
}

// DiscoveredDevice is the normalized identity+snapshot produced by a successful
// discovery probe. MAC and serial stay empty when no firmware response carried them
type DiscoveredDevice struct {
	Address     Address `json:"address"`
	Model       string  `json:"model"`
	HashrateGHS float64 `json:"hashrateGHS"`
	MACAddress  string  `json:"macAddress,omitempty"`
	Serial      string  `json:"serialNumber,omitempty"`
}
