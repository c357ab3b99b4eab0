package rotation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

func TestSelectNext(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		valid    []string
		previous string
		want     string
	}{
		{"no previous starts at first", []string{"a", "b", "c"}, "", "a"},
		{"advances by one", []string{"a", "b", "c"}, "a", "b"},
		{"wraps around", []string{"a", "b", "c"}, "c", "a"},
		{"single account repeats", []string{"a"}, "a", "a"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := SelectNext(tc.valid, tc.previous)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSelectNextRestartsWhenPreviousMissing(t *testing.T) {
	t.Parallel()

	got, err := SelectNext([]string{"b", "c"}, "a")
	require.NoError(t, err)
	require.Equal(t, "b", got)
}

func TestSelectNextEmptyIsInvariantViolation(t *testing.T) {
	t.Parallel()

	_, err := SelectNext(nil, "a")
	require.ErrorIs(t, err, crawler.ErrInvariantViolation)
}

func TestSelectNextVisitsEveryAccountOncePerCycle(t *testing.T) {
	t.Parallel()

	valid := []string{"a", "b", "c", "d"}
	prev := ""
	for cycle := 0; cycle < 3; cycle++ {
		seen := map[string]int{}
		for i := 0; i < len(valid); i++ {
			next, err := SelectNext(valid, prev)
			require.NoError(t, err)
			seen[next]++
			prev = next
		}
		require.Len(t, seen, len(valid))
		for _, id := range valid {
			require.Equal(t, 1, seen[id], "cycle %d account %s", cycle, id)
		}
	}
}
