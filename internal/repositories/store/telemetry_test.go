package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/TitanInd/minerwatch/internal/fleet"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testMiner("m1", "10.0.0.1", "aa:bb:cc:00:00:01")))

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 3; i++ {
		snap := fleet.TelemetrySnapshot{
			MinerID: "m1",
			Taken:   base.Add(time.Duration(i) * time.Minute),
			Telemetry: minerapi.Telemetry{
				HashrateGHS:  112000 + float64(i),
				BoardTempMax: 78.5,
				PowerMode:    "normal",
			},
		}
		require.NoError(t, s.InsertSnapshot(ctx, snap))
	}

	snaps, err := s.ListSnapshots(ctx, "m1", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	// newest first
	require.Equal(t, 112002.0, snaps[0].Telemetry.HashrateGHS)
	require.Equal(t, 78.5, snaps[0].Telemetry.BoardTempMax)
	require.Equal(t, "normal", snaps[0].Telemetry.PowerMode)

	snaps, err = s.ListSnapshots(ctx, "m1", 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
}

func TestListSnapshotsUnknownMiner(t *testing.T) {
	s := newTestStore(t)

	snaps, err := s.ListSnapshots(context.Background(), "nope", 10)
	require.NoError(t, err)
	require.Empty(t, snaps)
}
