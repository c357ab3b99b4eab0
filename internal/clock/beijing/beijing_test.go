package beijing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatSecondsAndMillisAgree(t *testing.T) {
	t.Parallel()

	secs := Format(1700000000, nil)
	millis := Format(1700000000000, nil)
	require.Equal(t, secs, millis)
	require.Equal(t, "2023-11-15 06:13:20", secs)
}

func TestFormatDropsSubsecondMillis(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2023-11-15 06:13:20", Format(1700000000999, nil))
}

func TestFormatRespectsLocation(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2023-11-14 22:13:20", Format(1700000000, time.UTC))
	require.Equal(t, "2023-11-14 23:13:20", Format(1700000000, Location(1)))
}

func TestNormalizeThreshold(t *testing.T) {
	t.Parallel()

	// 1e10 exactly is still treated as seconds.
	require.Equal(t, int64(10000000000), Normalize(10000000000).Unix())
	require.Equal(t, int64(10000000), Normalize(10000000001).Unix())
}
