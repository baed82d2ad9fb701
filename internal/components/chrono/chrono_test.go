package chrono

import (
	"context"
	"rapportage-downloader/internal/components/telemetry"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToday(t *testing.T) {
	now := time.Date(2024, time.March, 31, 23, 59, 59, 0, Amsterdam())
	require.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, Amsterdam()), Today(now))
}

func TestFakeTimeAdvances(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, Amsterdam())
	clock := NewFakeTime(start)

	require.NoError(t, clock.Sleep(context.Background(), time.Second))
	require.NoError(t, clock.Sleep(context.Background(), time.Minute))
	require.Equal(t, start.Add(time.Minute+time.Second), clock.Now())
	require.Equal(t, []time.Duration{time.Second, time.Minute}, clock.Sleeps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, clock.Sleep(ctx, time.Hour), context.Canceled)
	require.Len(t, clock.Sleeps(), 2)
}

func TestStandardSleepCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, NewStandardTime().Sleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, NewStandardTime().Sleep(context.Background(), time.Millisecond))
}

func TestCronRejectsInvalidSpec(t *testing.T) {
	cron := NewStandardCron(telemetry.NewTestAPI())
	require.Error(t, cron.Cron("every morning", func() {}))
	require.NoError(t, cron.Cron("0 6 * * *", func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cron.Run(ctx)
}
