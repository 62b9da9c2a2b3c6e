package uce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"UCEGo/global"
	"UCEGo/uce"
	"UCEGo/uce/trigger"
)

func TestRetryDelayFollowsExponentialFormula(t *testing.T) {
	saved := global.RetryBasePeriodMin
	global.RetryBasePeriodMin = 2
	defer func() { global.RetryBasePeriodMin = saved }()

	require.Equal(t, time.Duration(0), uce.RetryDelay(0))
	require.Equal(t, 2*time.Minute, uce.RetryDelay(1))
	require.Equal(t, 4*time.Minute, uce.RetryDelay(2))
	require.Equal(t, 8*time.Minute, uce.RetryDelay(3))
	require.Equal(t, 16*time.Minute, uce.RetryDelay(4))
}

func TestScheduleRetryIsMonotonicAndCapped(t *testing.T) {
	saved := global.RetryBasePeriodMin
	global.RetryBasePeriodMin = 1
	defer func() { global.RetryBasePeriodMin = saved }()

	ps := uce.NewPublishProcessorState()
	var previous time.Duration
	for i := 1; i <= global.PublishMaxRetries; i++ {
		require.True(t, ps.CanRetry(), "retry %d", i)
		delay, count := ps.ScheduleRetry()
		require.Equal(t, i, count)
		require.GreaterOrEqual(t, delay, previous)
		previous = delay
	}
	require.False(t, ps.CanRetry())
}

func TestResetRetryCountReopensWindow(t *testing.T) {
	saved := global.RetryBasePeriodMin
	global.RetryBasePeriodMin = 1
	defer func() { global.RetryBasePeriodMin = saved }()

	ps := uce.NewPublishProcessorState()
	ps.ScheduleRetry()
	require.Positive(t, ps.DelayToAllowed())

	ps.ResetRetryCount()
	require.Zero(t, ps.DelayToAllowed())
	require.True(t, ps.CanRetry())
}

func TestPendingTriggerKeepsMostRecent(t *testing.T) {
	ps := uce.NewPublishProcessorState()

	_, ok := ps.TakePending()
	require.False(t, ok)

	ps.SetPending(trigger.VtChange)
	ps.SetPending(trigger.MobileDataChange)

	tt, ok := ps.TakePending()
	require.True(t, ok)
	require.Equal(t, trigger.MobileDataChange, tt)

	_, ok = ps.TakePending()
	require.False(t, ok)
}
