package fleet

import (
	"fmt"
	"time"

	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertRule is a user-defined threshold condition over one telemetry metric.
// Read-only to the polling subsystem
type AlertRule struct {
	ID        string   `json:"id"`
	Metric    string   `json:"metric"`
	Operator  string   `json:"operator"`
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`
	Enabled   bool     `json:"enabled"`
}

// Alert is a raised threshold breach. At most one unacknowledged alert may
// exist per (miner, rule) pair at any time
type Alert struct {
	ID           string    `json:"id"`
	MinerID      string    `json:"minerId"`
	RuleID       string    `json:"ruleId"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"createdAt"`
}

// metric names addressable by alert rules
var metricReaders = map[string]func(minerapi.Telemetry) float64{
	"hashrate_ghs":    func(t minerapi.Telemetry) float64 { return t.HashrateGHS },
	"board_temp_max":  func(t minerapi.Telemetry) float64 { return t.BoardTempMax },
	"board_temp_avg":  func(t minerapi.Telemetry) float64 { return t.BoardTempAvg },
	"chip_temp_max":   func(t minerapi.Telemetry) float64 { return t.ChipTempMax },
	"env_temp":        func(t minerapi.Telemetry) float64 { return t.EnvTemp },
	"fan_in_rpm":      func(t minerapi.Telemetry) float64 { return t.FanInRPM },
	"fan_out_rpm":     func(t minerapi.Telemetry) float64 { return t.FanOutRPM },
	"power_w":         func(t minerapi.Telemetry) float64 { return t.PowerW },
	"efficiency":      func(t minerapi.Telemetry) float64 { return t.Efficiency },
	"pool_reject_pct": func(t minerapi.Telemetry) float64 { return t.PoolRejectPct },
	"pool_stale_pct":  func(t minerapi.Telemetry) float64 { return t.PoolStalePct },
}

// Metrics lists the metric names addressable by alert rules
func Metrics() []string {
	names := maps.Keys(metricReaders)
	slices.Sort(names)
	return names
}

// MetricValue resolves a rule's metric name against a telemetry record
func MetricValue(t minerapi.Telemetry, metric string) (float64, bool) {
	reader, ok := metricReaders[metric]
	if !ok {
		return 0, false
	}
	return reader(t), true
}

// RuleTriggered evaluates one rule against one telemetry record. Unknown
// metrics and operators never trigger
func RuleTriggered(rule AlertRule, t minerapi.Telemetry) bool {
	value, ok := MetricValue(t, rule.Metric)
	if !ok {
		return false
	}

	switch rule.Operator {
	case ">":
		return value > rule.Threshold
	case "<":
		return value < rule.Threshold
	case ">=":
		return value >= rule.Threshold
	case "<=":
		return value <= rule.Threshold
	default:
		return false
	}
}

// AlertMessage renders the operator-facing breach description
func AlertMessage(rule AlertRule, t minerapi.Telemetry) string {
	value, _ := MetricValue(t, rule.Metric)
	return fmt.Sprintf("%s is %.2f, threshold %s %.2f", rule.Metric, value, rule.Operator, rule.Threshold)
}
