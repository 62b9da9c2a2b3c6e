package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"UCEGo/cache"
	"UCEGo/global"
)

func openMemoryStore(t *testing.T, capExpiry, availExpiry time.Duration) *cache.SqliteStore {
	t.Helper()
	store, err := cache.Open(":memory:", capExpiry, availExpiry)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(uri string) global.Capability {
	return global.Capability{
		ContactURI:  uri,
		Mechanism:   global.MechanismPresence,
		Source:      global.SourceNetwork,
		FeatureTags: []string{"+g.3gpp.icsi-ref=\"urn%3Aurn-7%3A3gpp-service.ims.icsi.mmtel\""},
		Tuples: []global.PresenceTuple{
			{
				Basic:        global.BasicOpen,
				ServiceID:    "org.3gpp.urn:urn-7:3gpp-service.ims.icsi.mmtel",
				ContactURI:   uri,
				AudioCapable: true,
			},
		},
		RetrievedAt: time.Now(),
	}
}

func TestReadCapabilitiesPartitionsByFreshness(t *testing.T) {
	t.Parallel()
	store := openMemoryStore(t, time.Hour, time.Minute)

	fresh := sampleRecord("sip:alice@example.com")
	stale := sampleRecord("sip:bob@example.com")
	stale.RetrievedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Write([]global.Capability{fresh, stale}))

	results := store.ReadCapabilities([]string{"sip:alice@example.com", "sip:bob@example.com", "sip:carol@example.com"})
	require.Len(t, results, 3)

	require.Equal(t, cache.StatusFresh, results[0].Status)
	require.Equal(t, global.SourceCached, results[0].Record.Source)
	require.Equal(t, "sip:alice@example.com", results[0].Record.ContactURI)
	require.True(t, results[0].Record.HasFeatureTag(fresh.FeatureTags[0]))

	require.Equal(t, cache.StatusExpired, results[1].Status)
	require.Equal(t, "sip:bob@example.com", results[1].Record.ContactURI)

	require.Equal(t, cache.StatusNotFound, results[2].Status)
}

func TestReadAvailabilityUsesShorterWindow(t *testing.T) {
	t.Parallel()
	store := openMemoryStore(t, time.Hour, time.Minute)

	record := sampleRecord("sip:alice@example.com")
	record.RetrievedAt = time.Now().Add(-5 * time.Minute)
	require.NoError(t, store.Write([]global.Capability{record}))

	capResults := store.ReadCapabilities([]string{"sip:alice@example.com"})
	require.Equal(t, cache.StatusFresh, capResults[0].Status)

	availResult := store.ReadAvailability("sip:alice@example.com")
	require.Equal(t, cache.StatusExpired, availResult.Status)
}

func TestWriteUpsertsExistingRecord(t *testing.T) {
	t.Parallel()
	store := openMemoryStore(t, time.Hour, time.Minute)

	first := sampleRecord("sip:alice@example.com")
	require.NoError(t, store.Write([]global.Capability{first}))

	second := sampleRecord("sip:alice@example.com")
	second.Mechanism = global.MechanismOptions
	second.FeatureTags = []string{"+g.oma.sip-im"}
	second.Tuples = nil
	require.NoError(t, store.Write([]global.Capability{second}))

	results := store.ReadCapabilities([]string{"sip:alice@example.com"})
	require.Equal(t, cache.StatusFresh, results[0].Status)
	require.Equal(t, global.MechanismOptions, results[0].Record.Mechanism)
	require.Equal(t, []string{"+g.oma.sip-im"}, results[0].Record.FeatureTags)
	require.Empty(t, results[0].Record.Tuples)
}

func TestWriteNormalizesContactURI(t *testing.T) {
	t.Parallel()
	store := openMemoryStore(t, time.Hour, time.Minute)

	record := sampleRecord("<sip:alice@example.com;transport=tcp>")
	require.NoError(t, store.Write([]global.Capability{record}))

	result := store.ReadAvailability("sip:alice@example.com")
	require.Equal(t, cache.StatusFresh, result.Status)
}

func TestTerminatedRecordRoundTrip(t *testing.T) {
	t.Parallel()
	store := openMemoryStore(t, time.Hour, time.Minute)

	record := global.NewTerminatedCapability("sip:gone@example.com", "noresource", global.MechanismPresence)
	require.NoError(t, store.Write([]global.Capability{record}))

	results := store.ReadCapabilities([]string{"sip:gone@example.com"})
	require.Equal(t, cache.StatusFresh, results[0].Status)
	require.True(t, results[0].Record.Terminated)
	require.Equal(t, "noresource", results[0].Record.TerminationReason)
}
