package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/TitanInd/minerwatch/internal/fleet"
	"gitlab.com/TitanInd/minerwatch/internal/lib"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
)

// fakeFleet doubles as DeviceRepo, TelemetryRepo and AlertRepo
type fakeFleet struct {
	mu sync.Mutex

	miners    []*fleet.Miner
	responses map[string]map[string]interface{}

	statuses  map[string]fleet.Status
	snapshots []fleet.TelemetrySnapshot

	rules   []fleet.AlertRule
	alerts  []fleet.Alert
	unacked map[string]fleet.Alert
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{
		responses: make(map[string]map[string]interface{}),
		statuses:  make(map[string]fleet.Status),
		unacked:   make(map[string]fleet.Alert),
	}
}

func (f *fakeFleet) addMiner(id, host string, status fleet.Status) {
	f.miners = append(f.miners, &fleet.Miner{
		ID:      id,
		Address: minerapi.Address{Host: host, Port: 4028},
		Status:  status,
		Source:  fleet.SourceNetwork,
	})
}

// Command implements TelemetryProber, answering from the canned response map
func (f *fakeFleet) Command(ctx context.Context, addr minerapi.Address, cmd string, timeout time.Duration) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.responses[addr.Host]
	if !ok {
		return nil, minerapi.ErrUnreachable
	}
	return resp, nil
}

func (f *fakeFleet) ListLive(ctx context.Context) ([]*fleet.Miner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fleet.Miner{}, f.miners...), nil
}

func (f *fakeFleet) UpdateStatus(ctx context.Context, minerID string, status fleet.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[minerID] = status
	return nil
}

func (f *fakeFleet) InsertSnapshot(ctx context.Context, snap fleet.TelemetrySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeFleet) ListEnabledRules(ctx context.Context) ([]fleet.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fleet.AlertRule{}, f.rules...), nil
}

func (f *fakeFleet) FindUnacknowledged(ctx context.Context, minerID, ruleID string) (*fleet.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.unacked[minerID+"/"+ruleID]; ok {
		return &a, nil
	}
	return nil, nil
}

func (f *fakeFleet) CreateAlert(ctx context.Context, alert fleet.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	f.unacked[alert.MinerID+"/"+alert.RuleID] = alert
	return nil
}

func (f *fakeFleet) acknowledge(minerID, ruleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.unacked, minerID+"/"+ruleID)
}

func (f *fakeFleet) snapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

func (f *fakeFleet) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func (f *fakeFleet) status(minerID string) fleet.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[minerID]
}

func healthySummary(ghs float64) map[string]interface{} {
	return map[string]interface{}{
		"SUMMARY": []interface{}{map[string]interface{}{
			"GHS av":          ghs,
			"Temperature Max": 68.0,
		}},
	}
}

func newTestPoller(f *fakeFleet) *Poller {
	return NewPoller(Config{BatchSize: 2, ProbeTimeout: 100 * time.Millisecond}, f, f, f, f, lib.NewTestLogger())
}

func TestPollCycleOneFailingDevice(t *testing.T) {
	f := newFakeFleet()
	f.addMiner("m1", "10.0.0.1", fleet.StatusOnline)
	f.addMiner("m2", "10.0.0.2", fleet.StatusOnline)
	f.addMiner("m3", "10.0.0.3", fleet.StatusOnline)
	f.responses["10.0.0.1"] = healthySummary(112000)
	f.responses["10.0.0.3"] = healthySummary(98000)

	p := newTestPoller(f)
	require.NoError(t, p.PollCycle(context.Background()))

	// siblings of the failed device still got persisted
	require.Equal(t, 2, f.snapshotCount())
	require.Equal(t, fleet.StatusOffline, f.status("m2"))

	// failing devices get no history entry
	require.Len(t, p.History().Items("m1"), 1)
	require.Empty(t, p.History().Items("m2"))
}

func TestPollCycleOfflineWriteOnlyOnChange(t *testing.T) {
	f := newFakeFleet()
	f.addMiner("m1", "10.0.0.1", fleet.StatusOffline)

	p := newTestPoller(f)
	require.NoError(t, p.PollCycle(context.Background()))

	// already offline, no redundant status write
	_, wrote := f.statuses["m1"]
	require.False(t, wrote)
}

func TestPollCycleStatusTransition(t *testing.T) {
	f := newFakeFleet()
	f.addMiner("m1", "10.0.0.1", fleet.StatusOffline)
	f.responses["10.0.0.1"] = healthySummary(112000)

	p := newTestPoller(f)
	require.NoError(t, p.PollCycle(context.Background()))

	require.Equal(t, fleet.StatusOnline, f.status("m1"))
}

func TestPollCycleNoMiners(t *testing.T) {
	p := newTestPoller(newFakeFleet())
	require.NoError(t, p.PollCycle(context.Background()))
}

func TestAlertRaisedOncePerBreach(t *testing.T) {
	f := newFakeFleet()
	f.addMiner("m1", "10.0.0.1", fleet.StatusOnline)
	f.responses["10.0.0.1"] = healthySummary(112000)
	f.rules = []fleet.AlertRule{{
		ID:        "r1",
		Metric:    "hashrate_ghs",
		Operator:  ">",
		Threshold: 100000,
		Severity:  fleet.SeverityWarning,
		Enabled:   true,
	}}

	p := newTestPoller(f)

	require.NoError(t, p.PollCycle(context.Background()))
	require.Equal(t, 1, f.alertCount())

	// the breach persists, no duplicate while unacknowledged
	require.NoError(t, p.PollCycle(context.Background()))
	require.Equal(t, 1, f.alertCount())

	// acknowledging clears the way for the next breach
	f.acknowledge("m1", "r1")
	require.NoError(t, p.PollCycle(context.Background()))
	require.Equal(t, 2, f.alertCount())
}

func TestAlertNotRaisedBelowThreshold(t *testing.T) {
	f := newFakeFleet()
	f.addMiner("m1", "10.0.0.1", fleet.StatusOnline)
	f.responses["10.0.0.1"] = healthySummary(90000)
	f.rules = []fleet.AlertRule{{
		ID:        "r1",
		Metric:    "hashrate_ghs",
		Operator:  ">",
		Threshold: 100000,
		Severity:  fleet.SeverityWarning,
		Enabled:   true,
	}}

	p := newTestPoller(f)
	require.NoError(t, p.PollCycle(context.Background()))
	require.Equal(t, 0, f.alertCount())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFakeFleet()
	p := NewPoller(Config{Interval: 10 * time.Millisecond}, f, f, f, f, lib.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
