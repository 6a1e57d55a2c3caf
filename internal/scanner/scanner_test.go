package scanner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/TitanInd/minerwatch/internal/lib"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
)

// fakeProber answers from a fixed host to device map and tracks how many
// probes were in flight at once
type fakeProber struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	delay       time.Duration
	devices     map[string]*minerapi.DiscoveredDevice
}

func (f *fakeProber) Discover(ctx context.Context, addr minerapi.Address, timeout time.Duration) (*minerapi.DiscoveredDevice, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	dev := f.devices[addr.Host]
	f.mu.Unlock()

	if dev == nil {
		return nil, minerapi.ErrUnreachable
	}
	found := *dev
	found.Address = addr
	return &found, nil
}

func device(mac string, ghs float64) *minerapi.DiscoveredDevice {
	return &minerapi.DiscoveredDevice{MACAddress: mac, HashrateGHS: ghs, Model: "M30S"}
}

func waitStatus(t *testing.T, get func() (Progress, bool), want ScanStatus) Progress {
	t.Helper()
	var last Progress
	require.Eventually(t, func() bool {
		p, ok := get()
		if !ok {
			return false
		}
		last = p
		return p.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return last
}

func TestScanAddressesSparseRange(t *testing.T) {
	prober := &fakeProber{
		delay: 2 * time.Millisecond,
		devices: map[string]*minerapi.DiscoveredDevice{
			"10.0.0.3": device("aa:aa:aa:aa:aa:01", 112000),
			"10.0.0.7": device("aa:aa:aa:aa:aa:02", 98000),
		},
	}
	s := NewScanner(Config{ProbeConcurrency: 3}, prober, lib.NewTestLogger())

	addrs, err := ExpandRange("10.0.0.1", "10.0.0.10")
	require.NoError(t, err)

	sess := NewSession("test", len(addrs))
	s.ScanAddresses(context.Background(), addrs, sess)

	snap := sess.Snapshot()
	require.Equal(t, 10, snap.Scanned)
	require.Equal(t, 2, snap.Found)
	require.Len(t, snap.Discovered, 2)

	// batches bound peak concurrency
	require.LessOrEqual(t, prober.maxInFlight, 3)
}

func TestStartScanRunsToCompletion(t *testing.T) {
	prober := &fakeProber{
		devices: map[string]*minerapi.DiscoveredDevice{
			"10.0.0.2": device("aa:aa:aa:aa:aa:03", 84000),
		},
	}
	s := NewScanner(Config{}, prober, lib.NewTestLogger())

	id, err := s.StartScan(context.Background(), "10.0.0.1", "10.0.0.5")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap := waitStatus(t, func() (Progress, bool) { return s.Progress(id) }, StatusCompleted)
	require.Equal(t, 5, snap.Total)
	require.Equal(t, 5, snap.Scanned)
	require.Equal(t, 1, snap.Found)
	require.NotNil(t, snap.CompletedAt)
}

func TestStartScanInvalidRange(t *testing.T) {
	s := NewScanner(Config{}, &fakeProber{}, lib.NewTestLogger())

	_, err := s.StartScan(context.Background(), "bogus", "10.0.0.5")
	require.Error(t, err)
}

func TestStopScan(t *testing.T) {
	prober := &fakeProber{delay: 20 * time.Millisecond}
	s := NewScanner(Config{ProbeConcurrency: 1}, prober, lib.NewTestLogger())

	id, err := s.StartScan(context.Background(), "10.0.0.1", "10.0.0.50")
	require.NoError(t, err)

	require.True(t, s.StopScan(id))

	snap, ok := s.Progress(id)
	require.True(t, ok)
	require.Equal(t, StatusError, snap.Status)
	require.Less(t, snap.Scanned, snap.Total)
}

func TestStopScanUnknownSession(t *testing.T) {
	s := NewScanner(Config{}, &fakeProber{}, lib.NewTestLogger())
	require.False(t, s.StopScan("nope"))
}

func TestProgressUnknownSession(t *testing.T) {
	s := NewScanner(Config{}, &fakeProber{}, lib.NewTestLogger())
	_, ok := s.Progress("nope")
	require.False(t, ok)
}

func TestBatches(t *testing.T) {
	got := batches([]string{"a", "b", "c", "d", "e"}, 2)
	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, got)

	require.Nil(t, batches(nil, 2))
}
