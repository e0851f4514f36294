package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldRender(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mode      Mode
		accepted  int
		threshold int
		want      bool
	}{
		{ModeAuto, 2, 3, true},
		{ModeAuto, 3, 3, false},
		{ModeAuto, 4, 3, false},
		{ModeAuto, 0, 0, false},
		{ModeRenderedOnly, 10, 3, true},
		{ModeStaticOnly, 0, 3, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, shouldRender(tc.mode, tc.accepted, tc.threshold), "%+v", tc)
	}
}

func TestRunsStatic(t *testing.T) {
	t.Parallel()

	require.True(t, runsStatic(ModeAuto))
	require.True(t, runsStatic(ModeStaticOnly))
	require.False(t, runsStatic(ModeRenderedOnly))
}

func TestAllFailed(t *testing.T) {
	t.Parallel()

	require.False(t, allFailed(nil))
	require.True(t, allFailed([]StrategyReport{{Failed: true}, {Failed: true}}))
	require.False(t, allFailed([]StrategyReport{{Failed: true}, {Failed: false}}))
}

func TestCapTimeout(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	got, ok := capTimeout(5*time.Second, time.Time{}, false, now)
	require.True(t, ok)
	require.Equal(t, 5*time.Second, got)

	got, ok = capTimeout(5*time.Second, now.Add(2*time.Second), true, now)
	require.True(t, ok)
	require.Equal(t, 2*time.Second, got)

	got, ok = capTimeout(time.Second, now.Add(2*time.Second), true, now)
	require.True(t, ok)
	require.Equal(t, time.Second, got)

	got, ok = capTimeout(0, now.Add(2*time.Second), true, now)
	require.True(t, ok)
	require.Equal(t, 2*time.Second, got)

	_, ok = capTimeout(time.Second, now.Add(-time.Millisecond), true, now)
	require.False(t, ok)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode(" Rendered-Only ")
	require.NoError(t, err)
	require.Equal(t, ModeRenderedOnly, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeAuto, m)

	_, err = ParseMode("browser")
	require.Error(t, err)
}
