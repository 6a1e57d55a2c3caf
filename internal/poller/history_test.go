package poller

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
)

func TestTelemetryHistoryCapacity(t *testing.T) {
	h := NewTelemetryHistory(3)

	for i := 1; i <= 5; i++ {
		h.Add(minerapi.Telemetry{HashrateGHS: float64(i)})
	}

	items := h.Items()
	require.Len(t, items, 3)

	// oldest entries are dropped first
	require.Equal(t, 3.0, items[0].Telemetry.HashrateGHS)
	require.Equal(t, 5.0, items[2].Telemetry.HashrateGHS)
}

func TestHistoryBookLazyRings(t *testing.T) {
	book := NewHistoryBook(10)

	book.Ring("m1").Add(minerapi.Telemetry{HashrateGHS: 1})
	book.Ring("m1").Add(minerapi.Telemetry{HashrateGHS: 2})

	require.Len(t, book.Items("m1"), 2)
}

func TestHistoryBookUnknownDevice(t *testing.T) {
	book := NewHistoryBook(10)

	items := book.Items("never-polled")
	require.NotNil(t, items)
	require.Empty(t, items)
}
