package global

import (
	"sync"

	"UCEGo/prometheus"
)

const (
	EngineName        string = "UCEGo"
	EngineVersion     string = "1.0"
	EngineNameVersion string = EngineName + "/" + EngineVersion
	EntityName        string = "capabilities exchange"

	SipPort   int  = 5060
	MaxPort   int  = 65535
	DeltaRune rune = 'a' - 'A'

	QueueSize         int = 2500
	StatsBufferSize   int = 1000
	MaxAPIConnections int = 50

	// publish retry policy defaults
	DefaultRetryBasePeriodMin int = 1
	DefaultPublishMaxRetries  int = 4

	// exchange wait defaults in seconds
	DefaultRequestTimeoutSec int = 30
	DefaultPublishTimeoutSec int = 30

	// cache freshness defaults in seconds
	DefaultCapExpirySec   int = 7776000 // 90 days
	DefaultAvailExpirySec int = 60
)

var (
	WtGrp      sync.WaitGroup
	Prometrics *prometheus.Metrics

	// engine settings, resolved once at startup by main
	SubscriptionID      int
	SipOutboundProxy    string
	SipListenIP         string
	SipUdpPort          int
	OwnRcsURI           string
	PresenceCapEnabled  bool
	PresenceSupported   bool
	OptionsSupported    bool
	RetryBasePeriodMin  int
	PublishMaxRetries   int
	RequestTimeoutSec   int
	PublishTimeoutSec   int
	CapCacheExpirySec   int
	AvailCacheExpirySec int
	HttpTcpPort         int
	DbPath              string
	SettingsFile        string
)
