package fleet

import "gitlab.com/TitanInd/minerwatch/internal/minerapi"

// Status is the coarse health classification computed from telemetry plus
// reachability. Pure function of the latest record, recomputed every cycle
// and never stored independently of the record that produced it
type Status string

const (
	StatusOnline   Status = "online"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusOffline  Status = "offline"
)

const (
	boardTempWarning  = 75.0
	boardTempCritical = 85.0
)

// DeriveStatus is total: every telemetry record, including all-zero, maps to
// exactly one of the four states
func DeriveStatus(t minerapi.Telemetry, reachable bool) Status {
	if !reachable || t.HashrateGHS == 0 {
		return StatusOffline
	}

	boardTemp := t.BoardTempMax
	if boardTemp == 0 {
		boardTemp = t.BoardTempAvg
	}

	switch {
	case boardTemp > boardTempCritical:
		return StatusCritical
	case boardTemp > boardTempWarning:
		return StatusWarning
	default:
		return StatusOnline
	}
}
