package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gitlab.com/TitanInd/minerwatch/internal/fleet"
)

// ListEnabledRules returns the alert rules the poller evaluates each cycle
func (s *Store) ListEnabledRules(ctx context.Context) ([]fleet.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, metric, operator, threshold, severity, enabled FROM alert_rules WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("listing alert rules: %w", err)
	}
	defer rows.Close()

	var rules []fleet.AlertRule
	for rows.Next() {
		var (
			r        fleet.AlertRule
			severity string
			enabled  int
		)
		if err := rows.Scan(&r.ID, &r.Metric, &r.Operator, &r.Threshold, &severity, &enabled); err != nil {
			return nil, fmt.Errorf("scanning alert rule: %w", err)
		}
		r.Severity = fleet.Severity(severity)
		r.Enabled = enabled != 0
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SaveRule creates or replaces an alert rule
func (s *Store) SaveRule(ctx context.Context, r fleet.AlertRule) error {
	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alert_rules (id, metric, operator, threshold, severity, enabled)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Metric, r.Operator, r.Threshold, string(r.Severity), enabled,
	)
	if err != nil {
		return fmt.Errorf("saving alert rule %s: %w", r.ID, err)
	}
	return nil
}

// FindUnacknowledged returns the open alert for a (miner, rule) pair, nil when
// there is none
func (s *Store) FindUnacknowledged(ctx context.Context, minerID, ruleID string) (*fleet.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, miner_id, rule_id, severity, message, acknowledged, created_at
		FROM alerts WHERE miner_id = ? AND rule_id = ? AND acknowledged = 0`,
		minerID, ruleID,
	)

	a, err := scanAlert(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying open alert: %w", err)
	}
	return a, nil
}

// Create inserts a raised alert
func (s *Store) CreateAlert(ctx context.Context, a fleet.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, miner_id, rule_id, severity, message, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		a.ID, a.MinerID, a.RuleID, string(a.Severity), a.Message, a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting alert %s: %w", a.ID, err)
	}
	return nil
}

// Acknowledge marks an alert as handled, allowing the next breach to raise anew
func (s *Store) Acknowledge(ctx context.Context, alertID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET acknowledged = 1 WHERE id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("acknowledging alert %s: %w", alertID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %s not found", alertID)
	}
	return nil
}

// ListOpenAlerts returns all unacknowledged alerts, newest first
func (s *Store) ListOpenAlerts(ctx context.Context) ([]fleet.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, miner_id, rule_id, severity, message, acknowledged, created_at
		FROM alerts WHERE acknowledged = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []fleet.Alert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// SaveSlotMapping creates or replaces a MAC to physical-position mapping
func (s *Store) SaveSlotMapping(ctx context.Context, m fleet.SlotMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO slot_mappings (mac, container, position)
		VALUES (?, ?, ?)`,
		m.MACAddress, m.Container, m.Position,
	)
	if err != nil {
		return fmt.Errorf("saving slot mapping %s: %w", m.MACAddress, err)
	}
	return nil
}

// ListSlotMappings returns the externally supplied MAC to position mappings
func (s *Store) ListSlotMappings(ctx context.Context) ([]fleet.SlotMapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mac, container, position FROM slot_mappings`)
	if err != nil {
		return nil, fmt.Errorf("listing slot mappings: %w", err)
	}
	defer rows.Close()

	var mappings []fleet.SlotMapping
	for rows.Next() {
		var m fleet.SlotMapping
		if err := rows.Scan(&m.MACAddress, &m.Container, &m.Position); err != nil {
			return nil, fmt.Errorf("scanning slot mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func scanAlert(scan func(dest ...interface{}) error) (*fleet.Alert, error) {
	var (
		a         fleet.Alert
		severity  string
		acked     int
		createdAt int64
	)
	err := scan(&a.ID, &a.MinerID, &a.RuleID, &severity, &a.Message, &acked, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Severity = fleet.Severity(severity)
	a.Acknowledged = acked != 0
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}
