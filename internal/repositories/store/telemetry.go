package store

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/TitanInd/minerwatch/internal/fleet"
)

// InsertSnapshot records one poll cycle's telemetry for a miner
func (s *Store) InsertSnapshot(ctx context.Context, snap fleet.TelemetrySnapshot) error {
	t := snap.Telemetry
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telemetry_snapshots
		(miner_id, taken_at, hashrate_ghs, board_temp_min, board_temp_max, board_temp_avg,
		 chip_temp_min, chip_temp_max, chip_temp_avg, env_temp, fan_in_rpm, fan_out_rpm,
		 power_w, power_limit_w, power_mode, elapsed_sec, accepted, rejected,
		 pool_reject_pct, pool_stale_pct, efficiency, freq_avg, freq_target, factory_ghs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.MinerID, snap.Taken.Unix(), t.HashrateGHS,
		t.BoardTempMin, t.BoardTempMax, t.BoardTempAvg,
		t.ChipTempMin, t.ChipTempMax, t.ChipTempAvg, t.EnvTemp,
		t.FanInRPM, t.FanOutRPM, t.PowerW, t.PowerLimitW, t.PowerMode,
		t.ElapsedSec, t.Accepted, t.Rejected, t.PoolRejectPct, t.PoolStalePct,
		t.Efficiency, t.FreqAvg, t.FreqTarget, t.FactoryHashrateGHS,
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry snapshot for %s: %w", snap.MinerID, err)
	}
	return nil
}

// ListSnapshots returns up to limit most recent persisted snapshots for a
// miner, newest first
func (s *Store) ListSnapshots(ctx context.Context, minerID string, limit int) ([]fleet.TelemetrySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT miner_id, taken_at, hashrate_ghs, board_temp_min, board_temp_max, board_temp_avg,
		       chip_temp_min, chip_temp_max, chip_temp_avg, env_temp, fan_in_rpm, fan_out_rpm,
		       power_w, power_limit_w, power_mode, elapsed_sec, accepted, rejected,
		       pool_reject_pct, pool_stale_pct, efficiency, freq_avg, freq_target, factory_ghs
		FROM telemetry_snapshots WHERE miner_id = ? ORDER BY taken_at DESC LIMIT ?`,
		minerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots of %s: %w", minerID, err)
	}
	defer rows.Close()

	var snaps []fleet.TelemetrySnapshot
	for rows.Next() {
		var (
			snap    fleet.TelemetrySnapshot
			takenAt int64
		)
		t := &snap.Telemetry
		err := rows.Scan(
			&snap.MinerID, &takenAt, &t.HashrateGHS,
			&t.BoardTempMin, &t.BoardTempMax, &t.BoardTempAvg,
			&t.ChipTempMin, &t.ChipTempMax, &t.ChipTempAvg, &t.EnvTemp,
			&t.FanInRPM, &t.FanOutRPM, &t.PowerW, &t.PowerLimitW, &t.PowerMode,
			&t.ElapsedSec, &t.Accepted, &t.Rejected, &t.PoolRejectPct, &t.PoolStalePct,
			&t.Efficiency, &t.FreqAvg, &t.FreqTarget, &t.FactoryHashrateGHS,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		snap.Taken = time.Unix(takenAt, 0)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
