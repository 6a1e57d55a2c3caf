package minerapi

import (
	"regexp"
	"strconv"
	"strings"
)

// Firmware variants disagree on where the interesting fields live: some wrap
// them in SUMMARY[0], some in Msg, some return a bare flat object. Each source
// strategy is a pure function tried in priority order, so the "guess the shape"
// logic stays in one place and is testable with fixture payloads.

type sourceStrategy func(payload map[string]interface{}) (map[string]interface{}, bool)

var telemetrySources = []sourceStrategy{
	firstOfArray("SUMMARY"),
	objectField("Msg"),
	firstOfArray("STATS"),
	firstOfArray("DEVS"),
	identitySource,
}

// identitySource treats the top-level object itself as the field source
func identitySource(payload map[string]interface{}) (map[string]interface{}, bool) {
	return payload, true
}

func firstOfArray(key string) sourceStrategy {
	return func(payload map[string]interface{}) (map[string]interface{}, bool) {
		arr, ok := payload[key].([]interface{})
		if !ok || len(arr) == 0 {
			return nil, false
		}
		obj, ok := arr[0].(map[string]interface{})
		return obj, ok
	}
}

func objectField(key string) sourceStrategy {
	return func(payload map[string]interface{}) (map[string]interface{}, bool) {
		obj, ok := payload[key].(map[string]interface{})
		return obj, ok
	}
}

func telemetrySource(payload map[string]interface{}) map[string]interface{} {
	for _, strategy := range telemetrySources {
		if src, ok := strategy(payload); ok {
			return src
		}
	}
	return payload
}

// ExtractTelemetry reads the known key aliases out of whichever response shape
// the firmware produced. Absent metrics are zero by contract
func ExtractTelemetry(payload map[string]interface{}) Telemetry {
	src := telemetrySource(payload)

	t := Telemetry{
		FactoryHashrateGHS: num(src, "Factory GHS", "factory_ghs", "Factory Hashrate"),

		BoardTempMin: num(src, "Temperature Min", "temp_min", "TMin"),
		BoardTempMax: num(src, "Temperature Max", "temp_max", "TMax"),
		BoardTempAvg: num(src, "Temperature", "Temperature Avg", "temp_avg", "TAvg", "temp"),
		ChipTempMin:  num(src, "Chip Temp Min", "chip_temp_min"),
		ChipTempMax:  num(src, "Chip Temp Max", "chip_temp_max"),
		ChipTempAvg:  num(src, "Chip Temp Avg", "chip_temp_avg"),
		EnvTemp:      num(src, "Env Temp", "env_temp", "EnvTemp"),

		FanInRPM:  num(src, "Fan Speed In", "fan_speed_in", "FanIn", "Fan1"),
		FanOutRPM: num(src, "Fan Speed Out", "fan_speed_out", "FanOut", "Fan2"),

		PowerW:      num(src, "Power", "power", "Power Rate"),
		PowerLimitW: num(src, "Power Limit", "power_limit"),
		PowerMode:   str(src, "Power Mode", "power_mode", "Mode"),

		ElapsedSec: num(src, "Elapsed", "elapsed", "Uptime"),

		Accepted:      num(src, "Accepted", "accepted"),
		Rejected:      num(src, "Rejected", "rejected"),
		PoolRejectPct: num(src, "Pool Rejected%", "pool_rejected_pct", "Device Rejected%"),
		PoolStalePct:  num(src, "Pool Stale%", "pool_stale_pct"),

		FreqAvg:    num(src, "freq_avg", "Frequency", "frequency"),
		FreqTarget: num(src, "Target Freq", "target_freq"),
	}

	// hashrate may arrive in GH/s or MH/s depending on firmware generation
	if ghs := num(src, "GHS av", "GHS 5s", "ghs_av"); ghs != 0 {
		t.HashrateGHS = ghs
	} else {
		t.HashrateGHS = num(src, "MHS av", "MHS 5s", "mhs_av") / 1000
	}

	if t.Efficiency = num(src, "Power Efficiency", "efficiency"); t.Efficiency == 0 {
		if t.HashrateGHS > 0 && t.PowerW > 0 {
			t.Efficiency = t.PowerW / (t.HashrateGHS / 1000)
		}
	}

	return t
}

var macPattern = regexp.MustCompile(`^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$`)

var (
	macKeys    = []string{"MAC", "Mac", "mac", "mac_addr", "MACAddr", "macaddr", "net_mac"}
	serialKeys = []string{"Serial", "serial", "SerialNo", "serial_no", "SN", "sn", "miner_sn"}
	modelKeys  = []string{"Model", "model", "Type", "miner_type", "DEVICE", "Device Model"}
)

// ExtractMAC scans the well-known key names first and then falls back to
// sweeping every string-valued field for a colon-separated hex MAC. Firmware
// versions place the MAC under inconsistent, undocumented keys
func ExtractMAC(payload map[string]interface{}) string {
	for _, strategy := range telemetrySources {
		src, ok := strategy(payload)
		if !ok {
			continue
		}
		if mac := macFromObject(src); mac != "" {
			return mac
		}
	}
	return macFromObject(payload)
}

func macFromObject(src map[string]interface{}) string {
	for _, key := range macKeys {
		if v, ok := src[key].(string); ok && macPattern.MatchString(v) {
			return strings.ToLower(v)
		}
	}
	for _, v := range src {
		if s, ok := v.(string); ok && macPattern.MatchString(s) {
			return strings.ToLower(s)
		}
	}
	return ""
}

// ExtractIdentity pulls model, serial and MAC out of a response, inferring the
// model from the factory-rated hashrate tier when no explicit model string exists
func ExtractIdentity(payload map[string]interface{}) (model, serial, mac string) {
	mac = ExtractMAC(payload)

	for _, strategy := range telemetrySources {
		src, ok := strategy(payload)
		if !ok {
			continue
		}
		if model == "" {
			model = str(src, modelKeys...)
		}
		if serial == "" {
			serial = str(src, serialKeys...)
		}
	}

	if model == "" {
		t := ExtractTelemetry(payload)
		rated := t.FactoryHashrateGHS
		if rated == 0 {
			rated = t.HashrateGHS
		}
		model = ModelFromHashrate(rated)
	}

	return model, serial, mac
}

// ModelFromHashrate buckets a factory-rated hashrate figure into named tiers.
// Last-resort identification for firmware that reports no model string at all
func ModelFromHashrate(ghs float64) string {
	switch {
	case ghs == 0:
		return "Unknown"
	case ghs < 50_000:
		return "ASIC ~40TH class"
	case ghs < 90_000:
		return "ASIC ~70TH class"
	case ghs < 130_000:
		return "ASIC ~110TH class"
	case ghs < 180_000:
		return "ASIC ~150TH class"
	default:
		return "ASIC 200TH+ class"
	}
}

// num resolves the first present alias to a float64. JSON numbers decode as
// float64, but some firmware quotes numerics as strings
func num(src map[string]interface{}, aliases ...string) float64 {
	for _, key := range aliases {
		switch v := src[key].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func str(src map[string]interface{}, aliases ...string) string {
	for _, key := range aliases {
		if v, ok := src[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
