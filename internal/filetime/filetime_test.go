package filetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromTicksEpoch(t *testing.T) {
	got, err := FromTicks(epochOffset)
	require.NoError(t, err)
	require.Equal(t, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestFromTicksMax(t *testing.T) {
	got, err := FromTicks(MaxFILETIME)
	require.NoError(t, err)
	require.Equal(t, time.Date(2081, 1, 6, 0, 0, 0, 0, time.UTC), got)
}

func TestFromTicksBeforeEpochRejected(t *testing.T) {
	_, err := FromTicks(epochOffset - 1)
	require.ErrorIs(t, err, ErrBeforeEpoch)
}

func TestRoundTrip(t *testing.T) {
	want := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	ticks := ToTicks(want)
	got, err := FromTicks(ticks)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestISOAndUnixSecondsAgree(t *testing.T) {
	ts := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	iso := ISO(ts)
	parsed, err := ParseISO(iso)
	require.NoError(t, err)
	require.InDelta(t, UnixSeconds(ts), UnixSeconds(parsed), 1e-6)
}

func TestInRange(t *testing.T) {
	require.True(t, InRange(epochOffset))
	require.True(t, InRange(MaxFILETIME))
	require.False(t, InRange(epochOffset-1))
	require.False(t, InRange(MaxFILETIME+1))
}
