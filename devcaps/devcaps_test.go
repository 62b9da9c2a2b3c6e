package devcaps_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"UCEGo/devcaps"
	"UCEGo/pidf"
)

func TestFeatureTagDerivation(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name     string
		snapshot devcaps.Snapshot
		expected []string
	}{
		{
			name:     "not provisioned claims nothing",
			snapshot: devcaps.Snapshot{MobileDataEnabled: true, VtEnabled: true},
			expected: nil,
		},
		{
			name:     "provisioned voice only",
			snapshot: devcaps.Snapshot{Provisioned: true},
			expected: []string{devcaps.FeatureTagMmTel},
		},
		{
			name:     "mobile data adds chat and file transfer",
			snapshot: devcaps.Snapshot{Provisioned: true, MobileDataEnabled: true},
			expected: []string{devcaps.FeatureTagMmTel, devcaps.FeatureTagChat, devcaps.FeatureTagFileTransferHTTP},
		},
		{
			name:     "vt with mobile data adds video",
			snapshot: devcaps.Snapshot{Provisioned: true, MobileDataEnabled: true, VtEnabled: true},
			expected: []string{devcaps.FeatureTagMmTel, devcaps.FeatureTagVideo, devcaps.FeatureTagChat, devcaps.FeatureTagFileTransferHTTP},
		},
		{
			name:     "tty suppresses video",
			snapshot: devcaps.Snapshot{Provisioned: true, MobileDataEnabled: true, VtEnabled: true, TtyEnabled: true},
			expected: []string{devcaps.FeatureTagMmTel, devcaps.FeatureTagChat, devcaps.FeatureTagFileTransferHTTP},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.snapshot.FeatureTags())
		})
	}
}

func TestTupleDerivation(t *testing.T) {
	t.Parallel()

	snapshot := devcaps.Snapshot{Provisioned: true, MobileDataEnabled: true, VtEnabled: true}
	tuples := snapshot.Tuples("sip:self@example.com")
	require.Len(t, tuples, 3)
	require.Equal(t, pidf.ServiceIDMmTel, tuples[0].ServiceID)
	require.True(t, tuples[0].AudioCapable)
	require.True(t, tuples[0].VideoCapable)
	require.Equal(t, pidf.ServiceIDChat, tuples[1].ServiceID)
	require.Equal(t, pidf.ServiceIDFileTransfer, tuples[2].ServiceID)
	for _, tuple := range tuples {
		require.Equal(t, "sip:self@example.com", tuple.ContactURI)
	}

	require.Empty(t, devcaps.Snapshot{}.Tuples("sip:self@example.com"))
}

func TestMonitorNotifiesOnlyOnChange(t *testing.T) {
	t.Parallel()

	monitor := devcaps.NewMonitor()
	var events []devcaps.SettingEvent
	monitor.Register(func(ev devcaps.SettingEvent) { events = append(events, ev) })

	monitor.SetMobileDataEnabled(true)
	monitor.SetMobileDataEnabled(true)
	monitor.SetVtEnabled(true)
	monitor.SetVtEnabled(false)

	require.Equal(t, []devcaps.SettingEvent{
		{Kind: devcaps.KindMobileData, Enabled: true},
		{Kind: devcaps.KindVt, Enabled: true},
		{Kind: devcaps.KindVt, Enabled: false},
	}, events)

	snapshot := monitor.Snapshot()
	require.True(t, snapshot.MobileDataEnabled)
	require.False(t, snapshot.VtEnabled)
}

func TestWatcherReloadsOnRewrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	writeSettings := func(snapshot devcaps.Snapshot) {
		data, err := json.Marshal(snapshot)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0644))
	}
	writeSettings(devcaps.Snapshot{Provisioned: true})

	monitor := devcaps.NewMonitor()
	require.NoError(t, devcaps.LoadSettingsFile(monitor, path))
	require.True(t, monitor.Snapshot().Provisioned)

	watcher, err := devcaps.NewWatcher(monitor, path)
	require.NoError(t, err)
	defer watcher.Close()

	writeSettings(devcaps.Snapshot{Provisioned: true, ImsRegistered: true})

	require.Eventually(t, func() bool {
		return monitor.Snapshot().ImsRegistered
	}, 2*time.Second, 10*time.Millisecond)
}
