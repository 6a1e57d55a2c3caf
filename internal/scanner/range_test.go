package scanner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandRange(t *testing.T) {
	addrs, err := ExpandRange("10.0.0.1", "10.0.0.5")
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}, addrs)
}

func TestExpandRangeSingleAddress(t *testing.T) {
	addrs, err := ExpandRange("192.168.1.10", "192.168.1.10")
	require.NoError(t, err)
	require.Equal(t, []string{"192.168.1.10"}, addrs)
}

func TestExpandRangeCrossesOctet(t *testing.T) {
	addrs, err := ExpandRange("10.0.0.254", "10.0.1.1")
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.254", "10.0.0.255", "10.0.1.0", "10.0.1.1"}, addrs)
}

func TestExpandRangeStartPastEnd(t *testing.T) {
	addrs, err := ExpandRange("10.0.0.5", "10.0.0.1")
	require.NoError(t, err)
	require.Empty(t, addrs)
}

func TestExpandRangeTruncatesOversized(t *testing.T) {
	addrs, err := ExpandRange("10.0.0.0", "10.255.255.255")
	require.NoError(t, err)
	require.Len(t, addrs, MaxRangeSize)
	require.Equal(t, "10.0.0.0", addrs[0])
}

func TestExpandRangeInvalidInput(t *testing.T) {
	_, err := ExpandRange("not-an-ip", "10.0.0.1")
	require.Error(t, err)

	_, err = ExpandRange("10.0.0.1", "also-bad")
	require.Error(t, err)
}

func TestExpandRangeRejectsIPv6(t *testing.T) {
	_, err := ExpandRange("::1", "::2")
	require.Error(t, err)
}
