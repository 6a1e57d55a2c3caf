package fleet

import (
	"time"

	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
)

// Source says how an inventory row came to exist. Only network-sourced rows
// are polled, manually entered or simulated rows are display-only
type Source string

const (
	SourceNetwork Source = "network"
	SourceManual  Source = "manual"
)

// Miner is a persisted inventory record of one device
type Miner struct {
	ID          string           `json:"id"`
	Address     minerapi.Address `json:"address"`
	MACAddress  string           `json:"macAddress,omitempty"`
	Serial      string           `json:"serialNumber,omitempty"`
	Model       string           `json:"model"`
	HashrateGHS float64          `json:"hashrateGHS"`
	Source      Source           `json:"source"`
	Status      Status           `json:"status"`
	Container   string           `json:"container,omitempty"`
	Position    string           `json:"position,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func (m *Miner) GetID() string {
	return m.ID
}

// TelemetrySnapshot is one poll's persisted metric set for a miner
type TelemetrySnapshot struct {
	MinerID   string             `json:"minerId"`
	Taken     time.Time          `json:"taken"`
	Telemetry minerapi.Telemetry `json:"telemetry"`
}

// SlotMapping assigns a MAC to a physical container position. Supplied
// externally (rack layout editor), consumed by bulk scan reconciliation
type SlotMapping struct {
	MACAddress string `json:"macAddress"`
	Container  string `json:"container"`
	Position   string `json:"position"`
}
