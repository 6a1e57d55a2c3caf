package scanner

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"gitlab.com/TitanInd/minerwatch/internal/interfaces"
	"gitlab.com/TitanInd/minerwatch/internal/lib"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
	"golang.org/x/sync/errgroup"
)

// Prober is the identity probe entry point, satisfied by *minerapi.Client
type Prober interface {
	Discover(ctx context.Context, addr minerapi.Address, timeout time.Duration) (*minerapi.DiscoveredDevice, error)
}

// progressSink receives per-address scan outcomes, satisfied by *Session and
// by the bulk orchestrator's cumulative progress adapter
type progressSink interface {
	MarkScanned(addr string)
	AddFound(dev minerapi.DiscoveredDevice)
}

// probeResult carries one address's outcome through batch aggregation.
// Per-address errors are expected and counted, never propagated: absence of a
// miner is the overwhelmingly common case across a sparse range
type probeResult struct {
	addr   string
	device *minerapi.DiscoveredDevice
	err    error
}

type Config struct {
	Port               int
	ProbeTimeout       time.Duration
	ConnectTimeout     time.Duration
	ProbeConcurrency   int
	ConnectConcurrency int
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = 4028
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 1500 * time.Millisecond
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 1 * time.Second
	}
	if c.ProbeConcurrency == 0 {
		c.ProbeConcurrency = 20
	}
	if c.ConnectConcurrency == 0 {
		c.ConnectConcurrency = 100
	}
}

// Scanner sweeps IP ranges for responding miners. Batches run strictly
// sequentially, probes within a batch run concurrently, which bounds peak
// in-flight sockets to the batch size
type Scanner struct {
	cfg      Config
	prober   Prober
	dialer   net.Dialer
	sessions *lib.Collection[*Session]
	tasks    *lib.Collection[*sessionTask]
	log      interfaces.ILogger
}

type sessionTask struct {
	id   string
	task *lib.Task
}

func (t *sessionTask) GetID() string { return t.id }

func NewScanner(cfg Config, prober Prober, log interfaces.ILogger) *Scanner {
	cfg.setDefaults()
	return &Scanner{
		cfg:      cfg,
		prober:   prober,
		sessions: lib.NewCollection[*Session](),
		tasks:    lib.NewCollection[*sessionTask](),
		log:      log,
	}
}

// StartScan expands the range, registers a session and kicks off the sweep in
// the background. Returns the session id immediately, progress is polled
func (s *Scanner) StartScan(ctx context.Context, startAddr, endAddr string) (string, error) {
	addrs, err := ExpandRange(startAddr, endAddr)
	if err != nil {
		return "", err
	}

	sess := NewSession(uuid.NewString(), len(addrs))
	s.sessions.Store(sess)

	task := lib.NewTaskFunc(func(ctx context.Context) error {
		s.runSession(ctx, addrs, sess)
		return nil
	}, "scan-"+sess.GetID())
	s.tasks.Store(&sessionTask{id: sess.GetID(), task: task})
	task.Start(ctx)

	s.log.Infof("scan %s started: %s - %s (%d addresses)", sess.GetID(), startAddr, endAddr, len(addrs))
	return sess.GetID(), nil
}

// Progress returns the current snapshot for a session
func (s *Scanner) Progress(sessionID string) (Progress, bool) {
	sess, ok := s.sessions.Load(sessionID)
	if !ok {
		return Progress{}, false
	}
	return sess.Snapshot(), true
}

// StopScan cancels a running session between batches. In-flight probes of the
// current batch run to completion or timeout
func (s *Scanner) StopScan(sessionID string) bool {
	st, ok := s.tasks.Load(sessionID)
	if !ok {
		return false
	}
	<-st.task.Stop()
	return true
}

func (s *Scanner) runSession(ctx context.Context, addrs []string, sess *Session) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("scan %s panicked: %v", sess.GetID(), r)
			sess.Fail(fmt.Errorf("panic: %v", r))
		}
	}()

	s.ScanAddresses(ctx, addrs, sess)

	if ctx.Err() != nil {
		sess.Fail(ctx.Err())
		return
	}

	sess.Complete()
	snap := sess.Snapshot()
	s.log.Infof("scan %s completed: scanned=%d found=%d", sess.GetID(), snap.Scanned, snap.Found)
}

// ScanAddresses runs the full identity probe across all addresses in
// sequential batches of ProbeConcurrency
func (s *Scanner) ScanAddresses(ctx context.Context, addrs []string, sink progressSink) {
	for _, batch := range batches(addrs, s.cfg.ProbeConcurrency) {
		if ctx.Err() != nil {
			return
		}
		for _, res := range s.probeBatch(ctx, batch) {
			sink.MarkScanned(res.addr)
			if res.err == nil && res.device != nil {
				sink.AddFound(*res.device)
			}
		}
	}
}

// SweepAddresses is the cheaper two-phase variant for large sweeps: a wide
// TCP-connect reachability pass first, then full identity probes against only
// the addresses that answered. Trades one extra round trip against the
// majority-unreachable case for a large cut in total probe time
func (s *Scanner) SweepAddresses(ctx context.Context, addrs []string, sink progressSink) {
	var reachable []string

	for _, batch := range batches(addrs, s.cfg.ConnectConcurrency) {
		if ctx.Err() != nil {
			return
		}
		open := s.connectBatch(ctx, batch)
		for _, addr := range batch {
			if !open[addr] {
				sink.MarkScanned(addr)
			}
		}
		reachable = append(reachable, filterOpen(batch, open)...)
	}

	s.ScanAddresses(ctx, reachable, sink)
}

// probeBatch issues one batch of identity probes concurrently and waits for
// all of them to settle. One hung probe delays the next batch's start by at
// most the probe timeout, it never blocks siblings
func (s *Scanner) probeBatch(ctx context.Context, batch []string) []probeResult {
	results := make([]probeResult, len(batch))
	grp, grpCtx := errgroup.WithContext(ctx)

	for i, host := range batch {
		i, host := i, host
		grp.Go(func() error {
			addr := minerapi.Address{Host: host, Port: s.cfg.Port}
			dev, err := s.prober.Discover(grpCtx, addr, s.cfg.ProbeTimeout)
			results[i] = probeResult{addr: host, device: dev, err: err}
			return nil
		})
	}

	_ = grp.Wait()
	return results
}

// connectBatch runs the lightweight reachability pre-filter for one batch
func (s *Scanner) connectBatch(ctx context.Context, batch []string) map[string]bool {
	open := make([]bool, len(batch))
	grp, grpCtx := errgroup.WithContext(ctx)

	for i, host := range batch {
		i, host := i, host
		grp.Go(func() error {
			open[i] = s.checkPort(grpCtx, host)
			return nil
		})
	}
	_ = grp.Wait()

	result := make(map[string]bool, len(batch))
	for i, host := range batch {
		result[host] = open[i]
	}
	return result
}

// checkPort dials and immediately closes, no protocol exchange
func (s *Scanner) checkPort(ctx context.Context, host string) bool {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", minerapi.Address{Host: host, Port: s.cfg.Port}.String())
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func batches(addrs []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(addrs); start += size {
		end := start + size
		if end > len(addrs) {
			end = len(addrs)
		}
		out = append(out, addrs[start:end])
	}
	return out
}

func filterOpen(batch []string, open map[string]bool) []string {
	var out []string
	for _, addr := range batch {
		if open[addr] {
			out = append(out, addr)
		}
	}
	return out
}

