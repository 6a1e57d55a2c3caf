// Package store provides SQLite persistence for the miner inventory,
// telemetry snapshots and alerting.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gitlab.com/TitanInd/minerwatch/internal/fleet"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database. It implements the narrow repository
// interfaces consumed by the scanner and the poller
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at the given path and runs the schema
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new miner record
func (s *Store) Create(ctx context.Context, m *fleet.Miner) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO miners
		(id, host, port, mac, serial, model, hashrate_ghs, source, status, container, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Address.Host, m.Address.Port, m.MACAddress, m.Serial, m.Model,
		m.HashrateGHS, string(m.Source), string(m.Status), m.Container, m.Position,
		m.CreatedAt.Unix(), m.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting miner %s: %w", m.ID, err)
	}
	return nil
}

// GetByMAC finds a miner by its MAC address, nil when absent
func (s *Store) GetByMAC(ctx context.Context, mac string) (*fleet.Miner, error) {
	return s.getMiner(ctx, `SELECT `+minerColumns+` FROM miners WHERE mac = ?`, mac)
}

// GetByAddress finds a miner by host and port, nil when absent
func (s *Store) GetByAddress(ctx context.Context, addr minerapi.Address) (*fleet.Miner, error) {
	return s.getMiner(ctx, `SELECT `+minerColumns+` FROM miners WHERE host = ? AND port = ?`, addr.Host, addr.Port)
}

// Get finds a miner by id, nil when absent
func (s *Store) Get(ctx context.Context, minerID string) (*fleet.Miner, error) {
	return s.getMiner(ctx, `SELECT `+minerColumns+` FROM miners WHERE id = ?`, minerID)
}

// List returns the whole inventory
func (s *Store) List(ctx context.Context) ([]*fleet.Miner, error) {
	return s.listMiners(ctx, `SELECT `+minerColumns+` FROM miners ORDER BY host, port`)
}

// ListLive returns the miners the poller should visit: network-sourced rows,
// as opposed to manually entered inventory
func (s *Store) ListLive(ctx context.Context) ([]*fleet.Miner, error) {
	return s.listMiners(ctx, `SELECT `+minerColumns+` FROM miners WHERE source = ? ORDER BY host, port`, string(fleet.SourceNetwork))
}

// ListUnplaced returns miners without a container assignment
func (s *Store) ListUnplaced(ctx context.Context) ([]*fleet.Miner, error) {
	return s.listMiners(ctx, `SELECT `+minerColumns+` FROM miners WHERE container = '' AND mac != ''`)
}

// UpdateAddress moves a miner to a new network address. Used when a known MAC
// shows up under a different IP after a sweep
func (s *Store) UpdateAddress(ctx context.Context, minerID string, addr minerapi.Address) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE miners SET host = ?, port = ?, updated_at = ? WHERE id = ?`,
		addr.Host, addr.Port, time.Now().Unix(), minerID,
	)
	if err != nil {
		return fmt.Errorf("updating address of %s: %w", minerID, err)
	}
	return requireRow(res, minerID)
}

// UpdateStatus records a derived status transition
func (s *Store) UpdateStatus(ctx context.Context, minerID string, status fleet.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE miners SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), minerID,
	)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", minerID, err)
	}
	return requireRow(res, minerID)
}

// UpdatePlacement assigns a miner to a physical container position
func (s *Store) UpdatePlacement(ctx context.Context, minerID, container, position string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE miners SET container = ?, position = ?, updated_at = ? WHERE id = ?`,
		container, position, time.Now().Unix(), minerID,
	)
	if err != nil {
		return fmt.Errorf("updating placement of %s: %w", minerID, err)
	}
	return requireRow(res, minerID)
}

const minerColumns = `id, host, port, mac, serial, model, hashrate_ghs, source, status, container, position, created_at, updated_at`

func (s *Store) getMiner(ctx context.Context, query string, args ...interface{}) (*fleet.Miner, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	m, err := scanMiner(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying miner: %w", err)
	}
	return m, nil
}

func (s *Store) listMiners(ctx context.Context, query string, args ...interface{}) ([]*fleet.Miner, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing miners: %w", err)
	}
	defer rows.Close()

	var miners []*fleet.Miner
	for rows.Next() {
		m, err := scanMiner(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning miner row: %w", err)
		}
		miners = append(miners, m)
	}
	return miners, rows.Err()
}

func scanMiner(scan func(dest ...interface{}) error) (*fleet.Miner, error) {
	var (
		m                    fleet.Miner
		source, status       string
		createdAt, updatedAt int64
	)
	err := scan(
		&m.ID, &m.Address.Host, &m.Address.Port, &m.MACAddress, &m.Serial, &m.Model,
		&m.HashrateGHS, &source, &status, &m.Container, &m.Position, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Source = fleet.Source(source)
	m.Status = fleet.Status(status)
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	return &m, nil
}

func requireRow(res sql.Result, minerID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("miner %s not found", minerID)
	}
	return nil
}
