package scanner

import (
	"sync"
	"time"

	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
)

type ScanStatus string

const (
	StatusIdle      ScanStatus = "idle"
	StatusScanning  ScanStatus = "scanning"
	StatusCompleted ScanStatus = "completed"
	StatusError     ScanStatus = "error"
)

// Progress is the externally readable snapshot of one scan session
type Progress struct {
	SessionID   string                      `json:"sessionId"`
	Status      ScanStatus                  `json:"status"`
	Total       int                         `json:"total"`
	Scanned     int                         `json:"scanned"`
	Found       int                         `json:"found"`
	CurrentAddr string                      `json:"currentAddress,omitempty"`
	Discovered  []minerapi.DiscoveredDevice `json:"discovered"`
	StartedAt   time.Time                   `json:"startedAt"`
	CompletedAt *time.Time                  `json:"completedAt,omitempty"`
	Error       string                      `json:"error,omitempty"`
}

// Session is the mutable per-scan state. The scanner owns and mutates it for
// the session's lifetime, API clients poll snapshots concurrently. Not durable,
// a process restart loses in-flight progress and the scan is simply restarted
type Session struct {
	id string

	mu          sync.RWMutex
	status      ScanStatus
	total       int
	scanned     int
	found       int
	currentAddr string
	discovered  []minerapi.DiscoveredDevice
	startedAt   time.Time
	completedAt *time.Time
	errMsg      string
}

func NewSession(id string, total int) *Session {
	return &Session{
		id:         id,
		status:     StatusScanning,
		total:      total,
		discovered: []minerapi.DiscoveredDevice{},
		startedAt:  time.Now(),
	}
}

func (s *Session) GetID() string {
	return s.id
}

func (s *Session) MarkScanned(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanned++
	s.currentAddr = addr
}

func (s *Session) AddFound(dev minerapi.DiscoveredDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.found++
	s.discovered = append(s.discovered, dev)
}

func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.status = StatusCompleted
	s.completedAt = &now
	s.currentAddr = ""
}

func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.status = StatusError
	s.completedAt = &now
	s.errMsg = err.Error()
}

func (s *Session) Snapshot() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	discovered := make([]minerapi.DiscoveredDevice, len(s.discovered))
	copy(discovered, s.discovered)

	return Progress{
		SessionID:   s.id,
		Status:      s.status,
		Total:       s.total,
		Scanned:     s.scanned,
		Found:       s.found,
		CurrentAddr: s.currentAddr,
		Discovered:  discovered,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Error:       s.errMsg,
	}
}
