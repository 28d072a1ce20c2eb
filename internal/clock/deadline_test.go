package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRemainingCountsDownInWholeSeconds(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.Equal(t, 60, Remaining(start, 1, start))
	require.Equal(t, 1, Remaining(start, 1, start.Add(59*time.Second)))
	require.Equal(t, 0, Remaining(start, 1, start.Add(60*time.Second)))
	require.Equal(t, 0, Remaining(start, 1, start.Add(61*time.Second)))
}

func TestRemainingFloorsSubSecondPrecision(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// 59.2s elapsed of a 1 minute attempt leaves 0.8s, floored to 0.
	require.Equal(t, 0, Remaining(start, 1, start.Add(59*time.Second+200*time.Millisecond)))
	// 58.999s elapsed leaves 1.001s, floored to 1.
	require.Equal(t, 1, Remaining(start, 1, start.Add(58*time.Second+999*time.Millisecond)))
}

func TestRemainingNeverNegative(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Tolerate unbounded delay before expiry is observed.
	require.Equal(t, 0, Remaining(start, 30, start.Add(300*time.Hour)))
}

func TestDeadlineAndExpired(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.Equal(t, start.Add(45*time.Minute), Deadline(start, 45))
	require.False(t, Expired(start, 45, start.Add(44*time.Minute)))
	require.True(t, Expired(start, 45, start.Add(45*time.Minute)))
}
