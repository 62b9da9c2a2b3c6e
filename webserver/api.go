package webserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"UCEGo/devcaps"
	. "UCEGo/global"
	"UCEGo/uce"
	"UCEGo/uce/errcode"
	"UCEGo/uce/trigger"
)

var (
	ctrl   *uce.UceController
	device *devcaps.Monitor
)

func StartWS(uc *uce.UceController, dm *devcaps.Monitor) {
	ctrl = uc
	device = dm

	r := http.NewServeMux()
	ws := fmt.Sprintf("%s:%d", SipListenIP, HttpTcpPort)
	srv := &http.Server{Addr: ws, Handler: r, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 15 * time.Second}

	wireAPIPathHandlers(r)

	ln, err := net.Listen("tcp", ws)
	if err != nil {
		log.Fatal(err)
	}
	ln = netutil.LimitListener(ln, MaxAPIConnections)

	WtGrp.Add(1)
	go func() {
		defer WtGrp.Done()
		log.Fatal(srv.Serve(ln))
	}()

	fmt.Print("Loading API Webserver...")
	fmt.Println("Success: HTTP", ws)

	fmt.Printf("Prometheus metrics available at http://%s/metrics\n", ws)

	fmt.Printf("%s is ready to serve!\n", EngineName)
}

func wireAPIPathHandlers(r *http.ServeMux) {
	r.HandleFunc("GET /api/v1/tasks", serveTasks)
	r.HandleFunc("GET /api/v1/publish", servePublish)
	r.HandleFunc("POST /api/v1/publish", triggerPublish)
	r.HandleFunc("GET /api/v1/forbidden", serveForbidden)
	r.HandleFunc("GET /api/v1/device", serveDevice)
	r.HandleFunc("GET /api/v1/stats", serveStats)
	r.HandleFunc("GET /api/v1/config", serveConfig)
	r.HandleFunc("PATCH /api/v1/config", refreshConfig)
	r.HandleFunc("POST /api/v1/request", serveRequest)

	r.Handle("GET /metrics", Prometrics.Handler())
	r.HandleFunc("GET /", serveHome)
}

func serveHome(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write(fmt.Appendf(nil, "<h1>%s API Webserver</h1>\n", EngineNameVersion))
}

func serveTasks(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	data := struct {
		Count int      `json:"count"`
		Tasks []string `json:"tasks"`
	}{
		Count: ctrl.TaskCount(),
		Tasks: ctrl.TaskSummaries(),
	}

	response, _ := json.Marshal(data)
	_, err := w.Write(response)
	if err != nil {
		LogError(LTWebserver, err.Error())
	}
}

func servePublish(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response, _ := json.Marshal(ctrl.PublishSummary())
	_, err := w.Write(response)
	if err != nil {
		LogError(LTWebserver, err.Error())
	}
}

func triggerPublish(w http.ResponseWriter, _ *http.Request) {
	ctrl.TriggerPublish(trigger.Service)
	_, _ = w.Write(fmt.Appendf(nil, "<h1>%s API Webserver - Publish triggered</h1>\n", EngineNameVersion))
}

func serveForbidden(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response, _ := json.Marshal(ctrl.ForbiddenSummary())
	_, err := w.Write(response)
	if err != nil {
		LogError(LTWebserver, err.Error())
	}
}

func serveDevice(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response, _ := json.Marshal(ctrl.DeviceSnapshot())
	_, err := w.Write(response)
	if err != nil {
		LogError(LTWebserver, err.Error())
	}
}

func serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	BToMB := func(b uint64) uint64 {
		return b / 1000 / 1000
	}

	data := struct {
		CPUCount        int
		GoRoutinesCount int
		Alloc           uint64
		System          uint64
		GCCycles        uint32
		ActiveTasks     int
		PublishState    string
	}{
		CPUCount:        runtime.NumCPU(),
		GoRoutinesCount: runtime.NumGoroutine(),
		Alloc:           BToMB(m.Alloc),
		System:          BToMB(m.Sys),
		GCCycles:        m.NumGC,
		ActiveTasks:     ctrl.TaskCount(),
		PublishState:    ctrl.GetPublishState().String(),
	}

	response, _ := json.Marshal(data)
	_, err := w.Write(response)
	if err != nil {
		LogError(LTWebserver, err.Error())
	}
}

func serveConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	data := struct {
		SubscriptionID      int    `json:"subscriptionId"`
		SipOutboundProxy    string `json:"sipOutboundProxy"`
		SipListenIP         string `json:"sipListenIp"`
		SipUdpPort          int    `json:"sipUdpPort"`
		OwnRcsURI           string `json:"ownRcsUri"`
		PresenceCapEnabled  bool   `json:"presenceCapEnabled"`
		PresenceSupported   bool   `json:"presenceSupported"`
		OptionsSupported    bool   `json:"optionsSupported"`
		RetryBasePeriodMin  int    `json:"retryBasePeriodMin"`
		PublishMaxRetries   int    `json:"publishMaxRetries"`
		RequestTimeoutSec   int    `json:"requestTimeoutSec"`
		PublishTimeoutSec   int    `json:"publishTimeoutSec"`
		CapCacheExpirySec   int    `json:"capCacheExpirySec"`
		AvailCacheExpirySec int    `json:"availCacheExpirySec"`
		DbPath              string `json:"dbPath"`
		SettingsFile        string `json:"settingsFile"`
	}{
		SubscriptionID:      SubscriptionID,
		SipOutboundProxy:    SipOutboundProxy,
		SipListenIP:         SipListenIP,
		SipUdpPort:          SipUdpPort,
		OwnRcsURI:           OwnRcsURI,
		PresenceCapEnabled:  PresenceCapEnabled,
		PresenceSupported:   PresenceSupported,
		OptionsSupported:    OptionsSupported,
		RetryBasePeriodMin:  RetryBasePeriodMin,
		PublishMaxRetries:   PublishMaxRetries,
		RequestTimeoutSec:   RequestTimeoutSec,
		PublishTimeoutSec:   PublishTimeoutSec,
		CapCacheExpirySec:   CapCacheExpirySec,
		AvailCacheExpirySec: AvailCacheExpirySec,
		DbPath:              DbPath,
		SettingsFile:        SettingsFile,
	}

	response, _ := json.Marshal(data)
	_, err := w.Write(response)
	if err != nil {
		LogError(LTWebserver, err.Error())
	}
}

func refreshConfig(w http.ResponseWriter, _ *http.Request) {
	if SettingsFile == "" {
		http.Error(w, "no settings file configured", http.StatusConflict)
		return
	}
	if err := devcaps.LoadSettingsFile(device, SettingsFile); err != nil {
		LogError(LTWebserver, err.Error())
		http.Error(w, "Failed to reload device settings", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(fmt.Appendf(nil, "<h1>%s API Webserver - Device settings reloaded successfully</h1>\n", EngineNameVersion))
}

// serveRequest runs one capability or availability exchange on behalf of an
// HTTP caller and answers once the request settles.
func serveRequest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URIs         []string `json:"uris"`
		SkipCache    bool     `json:"skipCache"`
		Availability bool     `json:"availability"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if len(payload.URIs) == 0 {
		http.Error(w, "no target uris", http.StatusBadRequest)
		return
	}
	if payload.Availability && len(payload.URIs) > 1 {
		http.Error(w, "availability checks take a single uri", http.StatusBadRequest)
		return
	}

	type settled struct {
		code       errcode.Code
		retryAfter int64
	}
	var (
		mu      sync.Mutex
		records []Capability
	)
	done := make(chan settled, 1)
	cb := uce.CapabilityCallbackFuncs{
		Received: func(batch []Capability) error {
			mu.Lock()
			records = append(records, batch...)
			mu.Unlock()
			return nil
		},
		Complete: func() error {
			done <- settled{code: errcode.None}
			return nil
		},
		Error: func(code errcode.Code, retryAfterMillis int64) error {
			done <- settled{code: code, retryAfter: retryAfterMillis}
			return nil
		},
	}

	if payload.Availability {
		ctrl.RequestAvailability(payload.URIs[0], cb)
	} else {
		ctrl.RequestCapabilities(payload.URIs, payload.SkipCache, cb)
	}

	select {
	case out := <-done:
		mu.Lock()
		data := struct {
			Outcome          string       `json:"outcome"`
			ErrorCode        string       `json:"errorCode,omitempty"`
			RetryAfterMillis int64        `json:"retryAfterMillis,omitempty"`
			Records          []Capability `json:"records"`
		}{Records: records}
		mu.Unlock()
		if out.code == errcode.None {
			data.Outcome = "success"
		} else {
			data.Outcome = "failure"
			data.ErrorCode = out.code.String()
			data.RetryAfterMillis = out.retryAfter
		}
		w.Header().Set("Content-Type", "application/json")
		response, _ := json.Marshal(data)
		if _, err := w.Write(response); err != nil {
			LogError(LTWebserver, err.Error())
		}
	case <-time.After(time.Duration(RequestTimeoutSec+5) * time.Second):
		http.Error(w, "request timed out", http.StatusGatewayTimeout)
	}
}
