package global_test

import (
	"UCEGo/global"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStr2IntDefaultMinMax(t *testing.T) {
	t.Parallel()
	deflt := 0
	mini := 0
	maxi := 500
	tests := []struct {
		input    string
		defaultV int
		minlmt   int
		maxlmt   int
		expected int
		valid    bool
	}{
		{"123", deflt, mini, maxi, 123, true},
		{"-", deflt, mini, maxi, 0, false},
		{"-0", deflt, mini, maxi, 0, true},
		{"+50", deflt, mini, maxi, 50, true},
		{"-123", deflt, mini, maxi, 0, false},
		{"abc", deflt, mini, maxi, 0, false},
		{"", deflt, mini, maxi, 0, false},
		{"99", deflt, mini, maxi, 99, true},
		{"-300", deflt, mini, maxi, 0, false},
		{"0", deflt, mini, maxi, 0, true},
		{"499", deflt, mini, maxi, 499, true},
		{"500", deflt, mini, maxi, 500, true},
		{"501", deflt, mini, maxi, 0, false},
	}

	for _, test := range tests {
		result, valid := global.Str2IntDefaultMinMax(test.input, test.defaultV, test.minlmt, test.maxlmt)
		if result != test.expected || valid != test.valid {
			t.Errorf("Str2IntDefaultMinMax(%q, %d, %d) = (%d, %v); want (%d, %v)",
				test.input, test.defaultV, test.minlmt, result, valid, test.expected, test.valid)
		}
	}
}

func TestStr2Bool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		defaultV bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"enabled", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"", true, true},
		{"garbage", false, false},
		{" on ", false, true},
	}

	for _, test := range tests {
		result := global.Str2Bool(test.input, test.defaultV)
		if result != test.expected {
			t.Errorf("Str2Bool(%q, %v) = %v; want %v", test.input, test.defaultV, result, test.expected)
		}
	}
}

func TestNormalizeURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"sip:alice@example.com", "sip:alice@example.com"},
		{"<sip:alice@example.com>", "sip:alice@example.com"},
		{" <sip:alice@example.com> ", "sip:alice@example.com"},
		{"sip:alice@example.com;transport=udp", "sip:alice@example.com"},
		{"<tel:+15551234567;phone-context=example>", "tel:+15551234567"},
		{"", ""},
	}

	for _, test := range tests {
		result := global.NormalizeURI(test.input)
		if result != test.expected {
			t.Errorf("NormalizeURI(%q) = %q; want %q", test.input, result, test.expected)
		}
	}
}

func TestResponseCodeClassifiers(t *testing.T) {
	t.Parallel()

	require.True(t, global.IsProvisional(100), "100 is provisional")
	require.True(t, global.IsPositive(200), "200 is positive")
	require.True(t, global.IsPositive(299), "299 is positive")
	require.False(t, global.IsPositive(300), "300 is not positive")
	require.True(t, global.IsNegative(403), "403 is negative")
	require.True(t, global.IsNegativeClient(403), "403 is a client error")
	require.True(t, global.IsNegativeServer(503), "503 is a server error")
	require.False(t, global.IsNegativeServer(403), "403 is not a server error")
	require.True(t, global.IsFinal(699), "699 is final")
	require.False(t, global.IsFinal(199), "199 is not final")
}

func TestEqualsIgnoreCase(t *testing.T) {
	t.Parallel()

	require.True(t, global.EqualsIgnoreCase("User Not Registered", "user not registered"))
	require.True(t, global.EqualsIgnoreCase(global.SipReasonNotAuthorizedForPresence, "Not Authorized For Presence"))
	require.False(t, global.EqualsIgnoreCase("forbidden", "forbade"))
}

func TestTerminatedCapability(t *testing.T) {
	t.Parallel()

	cap := global.NewTerminatedCapability("sip:bob@example.com", "noresource", global.MechanismPresence)
	require.True(t, cap.Terminated)
	require.Equal(t, "noresource", cap.TerminationReason)
	require.Equal(t, global.SourceNetwork, cap.Source)
	require.False(t, cap.RetrievedAt.IsZero(), "retrieval time must be stamped")
}
