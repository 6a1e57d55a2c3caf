package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/TitanInd/minerwatch/internal/fleet"
	"gitlab.com/TitanInd/minerwatch/internal/interfaces"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
	uatomic "go.uber.org/atomic"
)

// ErrScanInProgress rejects a bulk scan request while one is running.
// Concurrent bulk scans would contend for the same bounded socket budget and
// corrupt the single shared progress record, so conflicts are rejected, not queued
var ErrScanInProgress = errors.New("bulk scan already in progress")

// Group is one device group's address range (a container or rack)
type Group struct {
	Container string `json:"container"`
	StartAddr string `json:"addressRangeStart"`
	EndAddr   string `json:"addressRangeEnd"`
}

// Inventory is the external device store the orchestrator merges discoveries into
type Inventory interface {
	GetByMAC(ctx context.Context, mac string) (*fleet.Miner, error)
	GetByAddress(ctx context.Context, addr minerapi.Address) (*fleet.Miner, error)
	Create(ctx context.Context, miner *fleet.Miner) error
	UpdateAddress(ctx context.Context, minerID string, addr minerapi.Address) error
	UpdatePlacement(ctx context.Context, minerID, container, position string) error
	ListUnplaced(ctx context.Context) ([]*fleet.Miner, error)
	ListSlotMappings(ctx context.Context) ([]fleet.SlotMapping, error)
}

// BulkProgress is the process-wide aggregate state of one orchestrated sweep
type BulkProgress struct {
	Status           ScanStatus `json:"status"`
	TotalGroups      int        `json:"totalGroups"`
	CompletedGroups  int        `json:"completedGroups"`
	CurrentGroup     string     `json:"currentGroup,omitempty"`
	TotalAddresses   int        `json:"totalAddresses"`
	ScannedAddresses int        `json:"scannedAddresses"`
	TotalFound       int        `json:"totalFound"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// BulkScanner sequences range sweeps across device groups so a fleet-wide scan
// never floods the network. Groups run strictly sequentially: total in-flight
// sockets stay bounded by one group's concurrency cap regardless of fleet size,
// these are embedded devices and probing them all at once risks false negatives
// from overload
type BulkScanner struct {
	scanner    *Scanner
	inv        Inventory
	isScanning uatomic.Bool

	mu       sync.RWMutex
	progress BulkProgress

	log interfaces.ILogger
}

func NewBulkScanner(scanner *Scanner, inv Inventory, log interfaces.ILogger) *BulkScanner {
	return &BulkScanner{
		scanner:  scanner,
		inv:      inv,
		progress: BulkProgress{Status: StatusIdle},
		log:      log,
	}
}

// Start kicks off a bulk sweep in the background. The check-and-set on the
// running flag is the exclusivity invariant: a second request while one is
// running gets ErrScanInProgress
func (b *BulkScanner) Start(ctx context.Context, groups []Group) error {
	if len(groups) == 0 {
		return errors.New("no device groups to scan")
	}
	if !b.isScanning.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}

	expanded := make([][]string, len(groups))
	total := 0
	for i, g := range groups {
		addrs, err := ExpandRange(g.StartAddr, g.EndAddr)
		if err != nil {
			b.isScanning.Store(false)
			return fmt.Errorf("group %s: %w", g.Container, err)
		}
		expanded[i] = addrs
		total += len(addrs)
	}

	b.mu.Lock()
	b.progress = BulkProgress{
		Status:         StatusScanning,
		TotalGroups:    len(groups),
		TotalAddresses: total,
		StartedAt:      time.Now(),
	}
	b.mu.Unlock()

	go b.run(ctx, groups, expanded)
	return nil
}

// Progress returns the current bulk sweep snapshot
func (b *BulkScanner) Progress() BulkProgress {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.progress
}

// run executes the sweep. Whatever happens, the shared progress record is
// finalized to completed or error, it is never left stuck in scanning
func (b *BulkScanner) run(ctx context.Context, groups []Group, expanded [][]string) {
	defer b.isScanning.Store(false)
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("bulk scan panicked: %v", r)
			b.finalize(fmt.Errorf("panic: %v", r))
		}
	}()

	for i, group := range groups {
		if ctx.Err() != nil {
			b.finalize(ctx.Err())
			return
		}

		b.setCurrentGroup(group.Container)
		b.log.Infof("bulk scan: group %s (%d addresses)", group.Container, len(expanded[i]))

		sink := &bulkSink{bulk: b}
		b.scanner.SweepAddresses(ctx, expanded[i], sink)

		if err := b.mergeDiscovered(ctx, sink.found); err != nil {
			b.finalize(err)
			return
		}
		b.completeGroup()
	}

	if err := b.reconcilePlacements(ctx); err != nil {
		b.finalize(err)
		return
	}

	b.finalize(nil)
	p := b.Progress()
	b.log.Infof("bulk scan completed: groups=%d scanned=%d found=%d", p.CompletedGroups, p.ScannedAddresses, p.TotalFound)
}

// mergeDiscovered creates devices not previously known by address. When an
// existing record already has the discovered MAC under a different address,
// the address is updated instead of creating a duplicate: MAC is the durable
// identity, the address is volatile
func (b *BulkScanner) mergeDiscovered(ctx context.Context, found []minerapi.DiscoveredDevice) error {
	for _, dev := range found {
		if dev.MACAddress != "" {
			existing, err := b.inv.GetByMAC(ctx, dev.MACAddress)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.Address != dev.Address {
					if err := b.inv.UpdateAddress(ctx, existing.ID, dev.Address); err != nil {
						return err
					}
				}
				continue
			}
		}

		existing, err := b.inv.GetByAddress(ctx, dev.Address)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		miner := &fleet.Miner{
			ID:          uuid.NewString(),
			Address:     dev.Address,
			MACAddress:  dev.MACAddress,
			Serial:      dev.Serial,
			Model:       dev.Model,
			HashrateGHS: dev.HashrateGHS,
			Source:      fleet.SourceNetwork,
			Status:      fleet.StatusOnline,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := b.inv.Create(ctx, miner); err != nil {
			return err
		}
	}
	return nil
}

// reconcilePlacements matches still-unassigned devices against the externally
// supplied MAC to physical-position mappings
func (b *BulkScanner) reconcilePlacements(ctx context.Context) error {
	mappings, err := b.inv.ListSlotMappings(ctx)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		return nil
	}

	byMAC := make(map[string]fleet.SlotMapping, len(mappings))
	for _, m := range mappings {
		byMAC[m.MACAddress] = m
	}

	unplaced, err := b.inv.ListUnplaced(ctx)
	if err != nil {
		return err
	}

	for _, miner := range unplaced {
		mapping, ok := byMAC[miner.MACAddress]
		if !ok {
			continue
		}
		if err := b.inv.UpdatePlacement(ctx, miner.ID, mapping.Container, mapping.Position); err != nil {
			return err
		}
	}
	return nil
}

func (b *BulkScanner) setCurrentGroup(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress.CurrentGroup = name
}

func (b *BulkScanner) completeGroup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress.CompletedGroups++
	b.progress.CurrentGroup = ""
}

func (b *BulkScanner) finalize(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.progress.CompletedAt = &now
	b.progress.CurrentGroup = ""
	if err != nil {
		b.progress.Status = StatusError
		b.progress.Error = err.Error()
		return
	}
	b.progress.Status = StatusCompleted
}

// bulkSink feeds one group's per-address outcomes into the cumulative bulk
// counters and collects the group's discoveries for the inventory merge
type bulkSink struct {
	bulk  *BulkScanner
	found []minerapi.DiscoveredDevice
}

func (s *bulkSink) MarkScanned(addr string) {
	s.bulk.mu.Lock()
	defer s.bulk.mu.Unlock()
	s.bulk.progress.ScannedAddresses++
}

func (s *bulkSink) AddFound(dev minerapi.DiscoveredDevice) {
	s.found = append(s.found, dev)
	s.bulk.mu.Lock()
	defer s.bulk.mu.Unlock()
	s.bulk.progress.TotalFound++
}
