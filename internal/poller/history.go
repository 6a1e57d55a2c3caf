package poller

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
)

// HistoryItem is one retained poll result for a device
type HistoryItem struct {
	Taken     time.Time          `json:"taken"`
	Telemetry minerapi.Telemetry `json:"telemetry"`
}

// smoothing window of the per-device hashrate average, roughly ten poll cycles
const hashrateAvgInterval = 5 * time.Minute

// TelemetryHistory is a bounded ring of recent poll results for one device.
// Backed by a fixed-capacity deque so steady-state polling allocates nothing
type TelemetryHistory struct {
	mu   sync.RWMutex
	data *deque.Deque[HistoryItem]
	cap  int
	ema  *GaugeEMA
}

func NewTelemetryHistory(capacity int) *TelemetryHistory {
	return &TelemetryHistory{
		data: deque.New[HistoryItem](capacity, capacity),
		cap:  capacity,
		ema:  NewGaugeEMA(hashrateAvgInterval),
	}
}

func (h *TelemetryHistory) Add(t minerapi.Telemetry) {
	h.mu.Lock()
	if h.data.Len() >= h.cap {
		h.data.PopFront()
	}
	h.data.PushBack(HistoryItem{Taken: time.Now(), Telemetry: t})
	h.mu.Unlock()

	h.ema.Add(t.HashrateGHS)
}

// SmoothedHashrate returns the exponentially averaged hashrate in GH/s,
// damping the large cycle-to-cycle variance of the instantaneous figure
func (h *TelemetryHistory) SmoothedHashrate() float64 {
	return h.ema.Value()
}

func (h *TelemetryHistory) Items() []HistoryItem {
	h.mu.RLock()
	defer h.mu.RUnlock()
	items := make([]HistoryItem, h.data.Len())
	for i := 0; i < h.data.Len(); i++ {
		items[i] = h.data.At(i)
	}
	return items
}

// HistoryBook keeps per-device history rings, created lazily on first poll
type HistoryBook struct {
	mu       sync.Mutex
	rings    map[string]*TelemetryHistory
	capacity int
}

func NewHistoryBook(capacity int) *HistoryBook {
	return &HistoryBook{
		rings:    make(map[string]*TelemetryHistory),
		capacity: capacity,
	}
}

func (b *HistoryBook) Ring(minerID string) *TelemetryHistory {
	b.mu.Lock()
	defer b.mu.Unlock()
	ring, ok := b.rings[minerID]
	if !ok {
		ring = NewTelemetryHistory(b.capacity)
		b.rings[minerID] = ring
	}
	return ring
}

// Items returns the retained history for a device, empty when never polled
func (b *HistoryBook) Items(minerID string) []HistoryItem {
	b.mu.Lock()
	ring, ok := b.rings[minerID]
	b.mu.Unlock()
	if !ok {
		return []HistoryItem{}
	}
	return ring.Items()
}

// SmoothedHashrate returns the averaged hashrate for a device, zero when
// never polled
func (b *HistoryBook) SmoothedHashrate(minerID string) float64 {
	b.mu.Lock()
	ring, ok := b.rings[minerID]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return ring.SmoothedHashrate()
}
