package uce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"UCEGo/uce"
	"UCEGo/uce/errcode"
)

func TestForbiddenWindowExpiresLazily(t *testing.T) {
	st := uce.NewServerState()
	require.False(t, st.IsRequestForbidden())

	st.UpdateRequestForbidden(true, errcode.NotAuthorized, 50)
	require.True(t, st.IsRequestForbidden())

	code, retryAfter := st.ForbiddenDetails()
	require.Equal(t, errcode.NotAuthorized, code)
	require.Positive(t, retryAfter)
	require.LessOrEqual(t, retryAfter, int64(50))

	time.Sleep(70 * time.Millisecond)
	require.False(t, st.IsRequestForbidden())
}

func TestForbiddenWithoutRetryAfterHoldsUntilCleared(t *testing.T) {
	st := uce.NewServerState()

	st.UpdateRequestForbidden(true, errcode.Forbidden, 0)
	require.True(t, st.IsRequestForbidden())

	time.Sleep(30 * time.Millisecond)
	require.True(t, st.IsRequestForbidden())

	st.UpdateRequestForbidden(false, errcode.None, 0)
	require.False(t, st.IsRequestForbidden())
}

func TestForbiddenDetailsDefaultsToForbiddenCode(t *testing.T) {
	st := uce.NewServerState()
	st.UpdateRequestForbidden(true, errcode.None, 0)

	code, retryAfter := st.ForbiddenDetails()
	require.Equal(t, errcode.Forbidden, code)
	require.Zero(t, retryAfter)
}

func TestForbiddenSummaryReflectsWindow(t *testing.T) {
	st := uce.NewServerState()
	st.UpdateRequestForbidden(true, errcode.NotRegistered, 60000)

	summary := st.Summary()
	require.True(t, summary.Forbidden)
	require.Equal(t, errcode.NotRegistered.String(), summary.ErrorCode)
	require.NotEmpty(t, summary.AllowedTime)
	require.Positive(t, summary.RetryAfterMillis)
}
