package poller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gitlab.com/TitanInd/minerwatch/internal/fleet"
	"gitlab.com/TitanInd/minerwatch/internal/interfaces"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
	uatomic "go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// TelemetryProber is the telemetry probe entry point, satisfied by *minerapi.Client
type TelemetryProber interface {
	Command(ctx context.Context, addr minerapi.Address, cmd string, timeout time.Duration) (map[string]interface{}, error)
}

// DeviceRepo is the slice of the inventory store the poller needs
type DeviceRepo interface {
	ListLive(ctx context.Context) ([]*fleet.Miner, error)
	UpdateStatus(ctx context.Context, minerID string, status fleet.Status) error
}

// TelemetryRepo persists per-cycle snapshots
type TelemetryRepo interface {
	InsertSnapshot(ctx context.Context, snap fleet.TelemetrySnapshot) error
}

// AlertRepo reads enabled rules and enforces the one-unacknowledged-alert rule
type AlertRepo interface {
	ListEnabledRules(ctx context.Context) ([]fleet.AlertRule, error)
	FindUnacknowledged(ctx context.Context, minerID, ruleID string) (*fleet.Alert, error)
	CreateAlert(ctx context.Context, alert fleet.Alert) error
}

type Config struct {
	Interval     time.Duration
	BatchSize    int
	ProbeTimeout time.Duration
	HistorySize  int
}

func (c *Config) setDefaults() {
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 30
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.HistorySize == 0 {
		c.HistorySize = 60
	}
}

// Poller re-polls all live devices on a fixed interval, derives health status,
// persists snapshots and evaluates alert rules
type Poller struct {
	cfg     Config
	prober  TelemetryProber
	devices DeviceRepo
	tele    TelemetryRepo
	alerts  AlertRepo
	history *HistoryBook

	isPolling uatomic.Bool

	log interfaces.ILogger
}

func NewPoller(cfg Config, prober TelemetryProber, devices DeviceRepo, tele TelemetryRepo, alerts AlertRepo, log interfaces.ILogger) *Poller {
	cfg.setDefaults()
	return &Poller{
		cfg:     cfg,
		prober:  prober,
		devices: devices,
		tele:    tele,
		alerts:  alerts,
		history: NewHistoryBook(cfg.HistorySize),
		log:     log,
	}
}

// History exposes the in-memory telemetry rings to the API layer
func (p *Poller) History() *HistoryBook {
	return p.history
}

// Run polls on the configured interval until the context is cancelled. The
// first cycle fires immediately
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick skips entirely when the previous cycle is still executing. Polling a
// large fleet can take longer than the interval and overlapping cycles would
// pile up unboundedly, the next scheduled tick is the retry
func (p *Poller) tick(ctx context.Context) {
	if !p.isPolling.CompareAndSwap(false, true) {
		p.log.Warnf("previous poll cycle still running, skipping tick")
		return
	}
	defer p.isPolling.Store(false)

	if err := p.PollCycle(ctx); err != nil {
		p.log.Errorf("poll cycle failed: %s", err)
	}
}

// PollCycle fetches telemetry from every live device in bounded batches. A
// single device's failure degrades that device to offline and never aborts
// the cycle or its batch siblings
func (p *Poller) PollCycle(ctx context.Context) error {
	miners, err := p.devices.ListLive(ctx)
	if err != nil {
		return err
	}
	if len(miners) == 0 {
		return nil
	}

	rules, err := p.alerts.ListEnabledRules(ctx)
	if err != nil {
		p.log.Errorf("listing alert rules: %s, continuing without alert evaluation", err)
		rules = nil
	}

	for start := 0; start < len(miners); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(miners) {
			end = len(miners)
		}
		p.pollBatch(ctx, miners[start:end], rules)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// pollBatch issues all probes of a batch concurrently and waits for every one
// to settle, success or failure
func (p *Poller) pollBatch(ctx context.Context, miners []*fleet.Miner, rules []fleet.AlertRule) {
	grp, grpCtx := errgroup.WithContext(ctx)

	for _, m := range miners {
		m := m
		grp.Go(func() error {
			p.pollDevice(grpCtx, m, rules)
			return nil
		})
	}

	_ = grp.Wait()
}

func (p *Poller) pollDevice(ctx context.Context, m *fleet.Miner, rules []fleet.AlertRule) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("polling %s panicked: %v", m.ID, r)
		}
	}()

	payload, err := p.prober.Command(ctx, m.Address, "summary", p.cfg.ProbeTimeout)
	if err != nil {
		p.log.Debugf("miner %s unreachable: %s", m.Address, err)
		// avoid redundant writes when the device is already known offline
		if m.Status != fleet.StatusOffline {
			if err := p.devices.UpdateStatus(ctx, m.ID, fleet.StatusOffline); err != nil {
				p.log.Errorf("updating status of %s: %s", m.ID, err)
			}
		}
		return
	}

	telemetry := minerapi.ExtractTelemetry(payload)
	status := fleet.DeriveStatus(telemetry, true)

	snap := fleet.TelemetrySnapshot{
		MinerID:   m.ID,
		Taken:     time.Now(),
		Telemetry: telemetry,
	}
	if err := p.tele.InsertSnapshot(ctx, snap); err != nil {
		p.log.Errorf("persisting snapshot of %s: %s", m.ID, err)
	}
	p.history.Ring(m.ID).Add(telemetry)

	if status != m.Status {
		if err := p.devices.UpdateStatus(ctx, m.ID, status); err != nil {
			p.log.Errorf("updating status of %s: %s", m.ID, err)
		}
	}

	p.evaluateRules(ctx, m, telemetry, rules)
}

// evaluateRules raises threshold alerts idempotently: repeated breaches of the
// same (device, rule) pair never create a second unacknowledged alert. A human
// acknowledging clears the way for the next breach to raise anew
func (p *Poller) evaluateRules(ctx context.Context, m *fleet.Miner, t minerapi.Telemetry, rules []fleet.AlertRule) {
	for _, rule := range rules {
		if !fleet.RuleTriggered(rule, t) {
			continue
		}

		existing, err := p.alerts.FindUnacknowledged(ctx, m.ID, rule.ID)
		if err != nil {
			p.log.Errorf("checking alerts for %s/%s: %s", m.ID, rule.ID, err)
			continue
		}
		if existing != nil {
			continue
		}

		alert := fleet.Alert{
			ID:        uuid.NewString(),
			MinerID:   m.ID,
			RuleID:    rule.ID,
			Severity:  rule.Severity,
			Message:   fleet.AlertMessage(rule, t),
			CreatedAt: time.Now(),
		}
		if err := p.alerts.CreateAlert(ctx, alert); err != nil {
			p.log.Errorf("creating alert for %s/%s: %s", m.ID, rule.ID, err)
			continue
		}
		p.log.Infow("alert raised", "miner", m.ID, "rule", rule.ID, "message", alert.Message)
	}
}
