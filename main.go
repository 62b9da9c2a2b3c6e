package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"UCEGo/cache"
	"UCEGo/conn"
	"UCEGo/conn/sipconn"
	"UCEGo/devcaps"
	"UCEGo/global"
	"UCEGo/prometheus"
	"UCEGo/uce"
	"UCEGo/uce/trigger"
	"UCEGo/webserver"
)

// environment variables
//
//nolint:revive
const (
	Subscription_ID  string = "uce_subscription_id"
	SIP_Proxy        string = "uce_sip_proxy"
	Own_IP_IPv4      string = "uce_server_ipv4"
	Own_SIP_UdpPort  string = "uce_sip_udp_port"
	Own_RCS_URI      string = "uce_own_uri"
	Presence_Enabled string = "uce_presence_enabled"
	Presence_Support string = "uce_presence_supported"
	Options_Support  string = "uce_options_supported"
	Retry_Base_Min   string = "uce_retry_base_period_min"
	Publish_Retries  string = "uce_publish_max_retries"
	Request_Timeout  string = "uce_request_timeout_sec"
	Publish_Timeout  string = "uce_publish_timeout_sec"
	Cap_Expiry       string = "uce_cap_expiry_sec"
	Avail_Expiry     string = "uce_avail_expiry_sec"
	Own_Http_Port    string = "uce_http_port"
	Db_Path          string = "uce_db_path"
	Settings_File    string = "uce_settings_file"
	Log_Level        string = "uce_log_level"
)

func main() {
	_ = godotenv.Load()

	checkArgs()
	global.InitLogging(os.Getenv(Log_Level))
	greeting()

	global.Prometrics = prometheus.NewMetrics(global.EngineNameVersion)

	store, err := cache.Open(global.DbPath,
		time.Duration(global.CapCacheExpirySec)*time.Second,
		time.Duration(global.AvailCacheExpirySec)*time.Second)
	if err != nil {
		log.Fatal("Error opening capability cache: ", err)
	}

	device := devcaps.NewMonitor()
	var watcher *devcaps.Watcher
	if global.SettingsFile != "" {
		if err = devcaps.LoadSettingsFile(device, global.SettingsFile); err != nil {
			global.LogWarning(global.LTSettings, fmt.Sprintf("Initial settings load failed - %v", err))
		}
		if watcher, err = devcaps.NewWatcher(device, global.SettingsFile); err != nil {
			global.LogWarning(global.LTSettings, fmt.Sprintf("Settings watcher unavailable - %v", err))
		}
	}

	var fc conn.FeatureConnection
	if global.SipOutboundProxy == "" {
		global.LogWarning(global.LTConnection, "No outbound proxy provided! - Serving from cache only")
		fc = conn.NewNullConnection()
	} else {
		sc, err := sipconn.Connect()
		if err != nil {
			log.Fatal("Error starting SIP endpoint: ", err)
		}
		fc = sc
	}

	ctrl := uce.NewUceController(store, fc, device)

	webserver.StartWS(ctrl, device)

	ctrl.TriggerPublish(trigger.Service)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	global.LogInfo(global.LTSystem, "Shutdown signal received")
	if watcher != nil {
		watcher.Close()
	}
	ctrl.Destroy()
}

func greeting() {
	global.LogInfo(global.LTSystem, fmt.Sprintf("Welcome to %s - Product of %s 2025", global.EngineNameVersion, global.ASCIIPascal(global.EntityName)))
}

func checkArgs() {
	var ok bool

	//nolint:mnd
	global.SubscriptionID, _ = global.Str2IntDefaultMinMax(os.Getenv(Subscription_ID), 1, 1, 999999)

	global.OwnRcsURI = os.Getenv(Own_RCS_URI)
	if global.OwnRcsURI == "" {
		global.LogWarning(global.LTConfiguration, "No own RCS URI provided")
		os.Exit(1)
	}

	global.SipOutboundProxy = os.Getenv(SIP_Proxy)
	if global.SipOutboundProxy != "" {
		global.LogInfo(global.LTConfiguration, fmt.Sprintf("Outbound proxy: [%s]", global.SipOutboundProxy))
	}

	global.SipListenIP = os.Getenv(Own_IP_IPv4)
	//nolint:mnd
	global.SipUdpPort, _ = global.Str2IntDefaultMinMax(os.Getenv(Own_SIP_UdpPort), global.SipPort, 1024, global.MaxPort)

	global.PresenceCapEnabled = global.Str2Bool(os.Getenv(Presence_Enabled), true)
	global.PresenceSupported = global.Str2Bool(os.Getenv(Presence_Support), true)
	global.OptionsSupported = global.Str2Bool(os.Getenv(Options_Support), true)

	//nolint:mnd
	global.RetryBasePeriodMin, _ = global.Str2IntDefaultMinMax(os.Getenv(Retry_Base_Min), global.DefaultRetryBasePeriodMin, 0, 60)
	//nolint:mnd
	global.PublishMaxRetries, _ = global.Str2IntDefaultMinMax(os.Getenv(Publish_Retries), global.DefaultPublishMaxRetries, 0, 10)

	//nolint:mnd
	global.RequestTimeoutSec, ok = global.Str2IntDefaultMinMax(os.Getenv(Request_Timeout), global.DefaultRequestTimeoutSec, 5, 600)
	if ok {
		global.LogInfo(global.LTConfiguration, fmt.Sprintf("Setting request timeout [%d]", global.RequestTimeoutSec))
	} else {
		global.LogWarning(global.LTConfiguration, fmt.Sprintf("Setting default request timeout [%d]", global.RequestTimeoutSec))
	}

	//nolint:mnd
	global.PublishTimeoutSec, ok = global.Str2IntDefaultMinMax(os.Getenv(Publish_Timeout), global.DefaultPublishTimeoutSec, 5, 600)
	if ok {
		global.LogInfo(global.LTConfiguration, fmt.Sprintf("Setting publish timeout [%d]", global.PublishTimeoutSec))
	} else {
		global.LogWarning(global.LTConfiguration, fmt.Sprintf("Setting default publish timeout [%d]", global.PublishTimeoutSec))
	}

	//nolint:mnd
	global.CapCacheExpirySec, _ = global.Str2IntDefaultMinMax(os.Getenv(Cap_Expiry), global.DefaultCapExpirySec, 60, 31536000)
	//nolint:mnd
	global.AvailCacheExpirySec, _ = global.Str2IntDefaultMinMax(os.Getenv(Avail_Expiry), global.DefaultAvailExpirySec, 5, 86400)

	//nolint:mnd
	global.HttpTcpPort, _ = global.Str2IntDefaultMinMax(os.Getenv(Own_Http_Port), 8080, 80, 9080)

	global.DbPath = os.Getenv(Db_Path)
	if global.DbPath == "" {
		global.DbPath = "uce_cache.db"
	}

	global.SettingsFile = os.Getenv(Settings_File)
}
