package store

const schema = `
CREATE TABLE IF NOT EXISTS miners (
	id           TEXT PRIMARY KEY,
	host         TEXT NOT NULL,
	port         INTEGER NOT NULL,
	mac          TEXT NOT NULL DEFAULT '',
	serial       TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	hashrate_ghs REAL NOT NULL DEFAULT 0,
	source       TEXT NOT NULL DEFAULT 'network',
	status       TEXT NOT NULL DEFAULT 'offline',
	container    TEXT NOT NULL DEFAULT '',
	position     TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	UNIQUE (host, port)
);

CREATE INDEX IF NOT EXISTS idx_miners_mac ON miners (mac);

CREATE TABLE IF NOT EXISTS telemetry_snapshots (
	miner_id        TEXT NOT NULL REFERENCES miners (id),
	taken_at        INTEGER NOT NULL,
	hashrate_ghs    REAL NOT NULL DEFAULT 0,
	board_temp_min  REAL NOT NULL DEFAULT 0,
	board_temp_max  REAL NOT NULL DEFAULT 0,
	board_temp_avg  REAL NOT NULL DEFAULT 0,
	chip_temp_min   REAL NOT NULL DEFAULT 0,
	chip_temp_max   REAL NOT NULL DEFAULT 0,
	chip_temp_avg   REAL NOT NULL DEFAULT 0,
	env_temp        REAL NOT NULL DEFAULT 0,
	fan_in_rpm      REAL NOT NULL DEFAULT 0,
	fan_out_rpm     REAL NOT NULL DEFAULT 0,
	power_w         REAL NOT NULL DEFAULT 0,
	power_limit_w   REAL NOT NULL DEFAULT 0,
	power_mode      TEXT NOT NULL DEFAULT '',
	elapsed_sec     REAL NOT NULL DEFAULT 0,
	accepted        REAL NOT NULL DEFAULT 0,
	rejected        REAL NOT NULL DEFAULT 0,
	pool_reject_pct REAL NOT NULL DEFAULT 0,
	pool_stale_pct  REAL NOT NULL DEFAULT 0,
	efficiency      REAL NOT NULL DEFAULT 0,
	freq_avg        REAL NOT NULL DEFAULT 0,
	freq_target     REAL NOT NULL DEFAULT 0,
	factory_ghs     REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_snapshots_miner ON telemetry_snapshots (miner_id, taken_at);

CREATE TABLE IF NOT EXISTS alert_rules (
	id        TEXT PRIMARY KEY,
	metric    TEXT NOT NULL,
	operator  TEXT NOT NULL,
	threshold REAL NOT NULL,
	severity  TEXT NOT NULL,
	enabled   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	miner_id     TEXT NOT NULL REFERENCES miners (id),
	rule_id      TEXT NOT NULL REFERENCES alert_rules (id),
	severity     TEXT NOT NULL,
	message      TEXT NOT NULL,
	acknowledged INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts (miner_id, rule_id, acknowledged);

CREATE TABLE IF NOT EXISTS slot_mappings (
	mac       TEXT PRIMARY KEY,
	container TEXT NOT NULL,
	position  TEXT NOT NULL
);
`
