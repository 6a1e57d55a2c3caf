package httphandlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gitlab.com/TitanInd/minerwatch/internal/config"
	"gitlab.com/TitanInd/minerwatch/internal/fleet"
	"gitlab.com/TitanInd/minerwatch/internal/interfaces"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
	"gitlab.com/TitanInd/minerwatch/internal/poller"
	"gitlab.com/TitanInd/minerwatch/internal/scanner"
)

// MinerStore is the inventory surface the API exposes
type MinerStore interface {
	List(ctx context.Context) ([]*fleet.Miner, error)
	Get(ctx context.Context, minerID string) (*fleet.Miner, error)
	ListOpenAlerts(ctx context.Context) ([]fleet.Alert, error)
	Acknowledge(ctx context.Context, alertID string) error
	SaveRule(ctx context.Context, rule fleet.AlertRule) error
	SaveSlotMapping(ctx context.Context, mapping fleet.SlotMapping) error
	ListSnapshots(ctx context.Context, minerID string, limit int) ([]fleet.TelemetrySnapshot, error)
}

type StartScanRequest struct {
	StartAddress string `json:"startAddress" binding:"required"`
	EndAddress   string `json:"endAddress" binding:"required"`
}

type BulkScanRequest struct {
	Groups []scanner.Group `json:"groups" binding:"required"`
}

type CommandRequest struct {
	Command  minerapi.CommandID     `json:"command" binding:"required"`
	Params   map[string]interface{} `json:"params"`
	Password string                 `json:"password"`
}

type HTTPHandler struct {
	scanner    *scanner.Scanner
	bulk       *scanner.BulkScanner
	dispatcher *minerapi.Dispatcher
	pollr      *poller.Poller
	store      MinerStore
	cfg        *config.Config
	log        interfaces.ILogger
}

func NewHTTPHandler(scan *scanner.Scanner, bulk *scanner.BulkScanner, dispatcher *minerapi.Dispatcher, pollr *poller.Poller, store MinerStore, cfg *config.Config, log interfaces.ILogger) *gin.Engine {
	handl := &HTTPHandler{
		scanner:    scan,
		bulk:       bulk,
		dispatcher: dispatcher,
		pollr:      pollr,
		store:      store,
		cfg:        cfg,
		log:        log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthcheck", handl.HealthCheck)
	r.GET("/config", handl.GetConfig)

	r.POST("/scan", handl.StartScan)
	r.GET("/scan/:ID", handl.GetScanProgress)
	r.DELETE("/scan/:ID", handl.StopScan)

	r.POST("/scan-bulk", handl.StartBulkScan)
	r.GET("/scan-bulk/progress", handl.GetBulkScanProgress)

	r.GET("/miners", handl.GetMiners)
	r.GET("/miners/:ID", handl.GetMiner)
	r.GET("/miners/:ID/telemetry", handl.GetMinerTelemetry)
	r.GET("/miners/:ID/snapshots", handl.GetMinerSnapshots)
	r.GET("/miners/:ID/stats", handl.GetMinerStats)
	r.POST("/miners/:ID/command", handl.SendCommand)

	r.GET("/alerts", handl.GetAlerts)
	r.POST("/alerts/:ID/acknowledge", handl.AcknowledgeAlert)
	r.GET("/alert-metrics", handl.GetAlertMetrics)
	r.PUT("/alert-rules", handl.SaveAlertRule)

	r.PUT("/slot-mappings", handl.ImportSlotMappings)

	err := r.SetTrustedProxies(nil)
	if err != nil {
		panic(err)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *HTTPHandler) GetConfig(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.cfg.GetSanitized())
}

// StartScan kicks off a range scan and returns its session id immediately.
// Progress is polled via GetScanProgress
func (h *HTTPHandler) StartScan(ctx *gin.Context) {
	var req StartScanRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID, err := h.scanner.StartScan(context.Background(), req.StartAddress, req.EndAddress)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"sessionId": sessionID})
}

func (h *HTTPHandler) GetScanProgress(ctx *gin.Context) {
	progress, ok := h.scanner.Progress(ctx.Param("ID"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown scan session"})
		return
	}
	ctx.JSON(http.StatusOK, progress)
}

func (h *HTTPHandler) StopScan(ctx *gin.Context) {
	if !h.scanner.StopScan(ctx.Param("ID")) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown scan session"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// StartBulkScan starts the fleet-wide sweep. Only one bulk scan may run at a
// time, a conflicting request is rejected with 409
func (h *HTTPHandler) StartBulkScan(ctx *gin.Context) {
	var req BulkScanRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.bulk.Start(context.Background(), req.Groups)
	if errors.Is(err, scanner.ErrScanInProgress) {
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *HTTPHandler) GetBulkScanProgress(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.bulk.Progress())
}

func (h *HTTPHandler) GetMiners(ctx *gin.Context) {
	miners, err := h.store.List(ctx)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, miners)
}

func (h *HTTPHandler) GetMiner(ctx *gin.Context) {
	miner, err := h.store.Get(ctx, ctx.Param("ID"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if miner == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown miner"})
		return
	}
	ctx.JSON(http.StatusOK, miner)
}

// GetMinerTelemetry serves the in-memory ring of recent poll results
func (h *HTTPHandler) GetMinerTelemetry(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.pollr.History().Items(ctx.Param("ID")))
}

// GetMinerStats serves derived per-device figures from the in-memory history
func (h *HTTPHandler) GetMinerStats(ctx *gin.Context) {
	minerID := ctx.Param("ID")
	ctx.JSON(http.StatusOK, gin.H{
		"smoothedHashrateGHS": h.pollr.History().SmoothedHashrate(minerID),
		"samples":             len(h.pollr.History().Items(minerID)),
	})
}

// GetMinerSnapshots serves the persisted telemetry history, newest first
func (h *HTTPHandler) GetMinerSnapshots(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	snaps, err := h.store.ListSnapshots(ctx, ctx.Param("ID"), limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snaps == nil {
		snaps = []fleet.TelemetrySnapshot{}
	}
	ctx.JSON(http.StatusOK, snaps)
}

// SendCommand dispatches one control command to one device and returns the
// classified result synchronously. Device-side failures come back inside the
// result body, never as a 5xx
func (h *HTTPHandler) SendCommand(ctx *gin.Context) {
	var req CommandRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	miner, err := h.store.Get(ctx, ctx.Param("ID"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if miner == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown miner"})
		return
	}

	result := h.dispatcher.SendCommand(ctx, miner.Address, req.Command, req.Params, req.Password)
	ctx.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) GetAlerts(ctx *gin.Context) {
	alerts, err := h.store.ListOpenAlerts(ctx)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, alerts)
}

// SaveAlertRule creates or replaces a threshold rule. The poller picks the
// change up on its next cycle, no restart needed
func (h *HTTPHandler) SaveAlertRule(ctx *gin.Context) {
	var rule fleet.AlertRule
	if err := ctx.ShouldBindJSON(&rule); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := fleet.MetricValue(minerapi.Telemetry{}, rule.Metric); !ok {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric " + rule.Metric})
		return
	}
	if err := h.store.SaveRule(ctx, rule); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, rule)
}

// ImportSlotMappings replaces MAC to physical-position mappings in bulk,
// typically uploaded from a rack layout sheet
func (h *HTTPHandler) ImportSlotMappings(ctx *gin.Context) {
	var mappings []fleet.SlotMapping
	if err := ctx.ShouldBindJSON(&mappings); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, m := range mappings {
		if err := h.store.SaveSlotMapping(ctx, m); err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"imported": len(mappings)})
}

// GetAlertMetrics lists the telemetry metric names alert rules may target
func (h *HTTPHandler) GetAlertMetrics(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"metrics": fleet.Metrics()})
}

func (h *HTTPHandler) AcknowledgeAlert(ctx *gin.Context) {
	if err := h.store.Acknowledge(ctx, ctx.Param("ID")); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}
