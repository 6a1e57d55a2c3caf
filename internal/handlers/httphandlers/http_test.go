package httphandlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gitlab.com/TitanInd/minerwatch/internal/config"
	"gitlab.com/TitanInd/minerwatch/internal/fleet"
	"gitlab.com/TitanInd/minerwatch/internal/lib"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
	"gitlab.com/TitanInd/minerwatch/internal/poller"
	"gitlab.com/TitanInd/minerwatch/internal/repositories/store"
	"gitlab.com/TitanInd/minerwatch/internal/scanner"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := lib.NewTestLogger()
	client := minerapi.NewClient(log)
	dispatcher := minerapi.NewDispatcher(client, time.Second, log)
	scan := scanner.NewScanner(scanner.Config{}, client, log)
	bulk := scanner.NewBulkScanner(scan, db, log)
	pollr := poller.NewPoller(poller.Config{}, client, db, db, db, log)

	cfg := &config.Config{}
	cfg.SetDefaults()

	return NewHTTPHandler(scan, bulk, dispatcher, pollr, db, cfg, log), db
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/healthcheck", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "healthy")
}

func TestGetConfig(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStartScanValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/scan", `{"startAddress":"10.0.0.1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/scan", `{"startAddress":"bogus","endAddress":"10.0.0.2"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanSessionLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/scan/unknown", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodDelete, "/scan/unknown", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkScanValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/scan-bulk", `{"groups":[]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/scan-bulk/progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "idle")
}

func TestGetMiners(t *testing.T) {
	r, db := newTestRouter(t)

	m := &fleet.Miner{
		ID:        "m1",
		Address:   minerapi.Address{Host: "10.0.0.1", Port: 4028},
		Model:     "M30S",
		Source:    fleet.SourceNetwork,
		Status:    fleet.StatusOnline,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(context.Background(), m))

	w := do(t, r, http.MethodGet, "/miners", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "m1")

	w = do(t, r, http.MethodGet, "/miners/m1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/miners/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMinerTelemetryEmpty(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/miners/m1/telemetry", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", w.Body.String())

	w = do(t, r, http.MethodGet, "/miners/m1/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", w.Body.String())
}

func TestSendCommandUnknownMiner(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/miners/nope/command", `{"command":"restart"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertRuleValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPut, "/alert-rules", `{"id":"r1","metric":"bogus","operator":">","threshold":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPut, "/alert-rules",
		`{"id":"r1","metric":"board_temp_max","operator":">","threshold":85,"severity":"critical","enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAlertMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/alert-metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "hashrate_ghs")
}

func TestSlotMappingImport(t *testing.T) {
	r, db := newTestRouter(t)

	w := do(t, r, http.MethodPut, "/slot-mappings",
		`[{"macAddress":"aa:bb:cc:00:00:01","container":"C01","position":"A3"}]`)
	require.Equal(t, http.StatusOK, w.Code)

	mappings, err := db.ListSlotMappings(context.Background())
	require.NoError(t, err)
	require.Len(t, mappings, 1)
}

func TestAcknowledgeUnknown(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/alerts/nope/acknowledge", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
