package devcaps

import (
	"fmt"
	"sync"

	"UCEGo/global"
	"UCEGo/pidf"
)

// Feature tags advertised in OPTIONS exchanges and derived publish documents.
const (
	FeatureTagMmTel            string = `+g.3gpp.icsi-ref="urn%3Aurn-7%3A3gpp-service.ims.icsi.mmtel"`
	FeatureTagVideo            string = "video"
	FeatureTagChat             string = `+g.3gpp.iari-ref="urn%3Aurn-7%3A3gpp-application.ims.iari.rcse.im"`
	FeatureTagFileTransferHTTP string = `+g.3gpp.iari-ref="urn%3Aurn-7%3A3gpp-application.ims.iari.rcs.fthttp"`
)

type SettingKind int

const (
	KindAirplaneMode SettingKind = iota
	KindMobileData
	KindTty
	KindVt
	KindProvisioning
	KindRegistration
)

var settingKindNames = map[SettingKind]string{
	KindAirplaneMode: "AirplaneMode",
	KindMobileData:   "MobileData",
	KindTty:          "Tty",
	KindVt:           "Vt",
	KindProvisioning: "Provisioning",
	KindRegistration: "Registration",
}

func (sk SettingKind) String() string {
	return settingKindNames[sk]
}

type SettingEvent struct {
	Kind    SettingKind
	Enabled bool
}

// Snapshot is a point-in-time copy of the device settings the engine derives
// its own capabilities from.
type Snapshot struct {
	AirplaneMode      bool `json:"airplaneMode"`
	MobileDataEnabled bool `json:"mobileDataEnabled"`
	TtyEnabled        bool `json:"ttyEnabled"`
	VtEnabled         bool `json:"vtEnabled"`
	Provisioned       bool `json:"provisioned"`
	ImsRegistered     bool `json:"imsRegistered"`
}

// FeatureTags returns the contact feature tags the device can currently claim.
// Nothing is claimed until provisioning succeeds.
func (s Snapshot) FeatureTags() []string {
	if !s.Provisioned {
		return nil
	}
	tags := []string{FeatureTagMmTel}
	if s.videoCapable() {
		tags = append(tags, FeatureTagVideo)
	}
	if s.MobileDataEnabled {
		tags = append(tags, FeatureTagChat, FeatureTagFileTransferHTTP)
	}
	return tags
}

// Tuples renders the snapshot as presence tuples for the device's own publish
// document, one tuple per claimable service.
func (s Snapshot) Tuples(ownURI string) []global.PresenceTuple {
	if !s.Provisioned {
		return nil
	}
	tuples := []global.PresenceTuple{
		{
			Basic:          global.BasicOpen,
			ServiceID:      pidf.ServiceIDMmTel,
			ServiceVersion: "1.0",
			Description:    "Voice Service",
			ContactURI:     ownURI,
			AudioCapable:   true,
			VideoCapable:   s.videoCapable(),
		},
	}
	if s.MobileDataEnabled {
		tuples = append(tuples,
			global.PresenceTuple{
				Basic:          global.BasicOpen,
				ServiceID:      pidf.ServiceIDChat,
				ServiceVersion: "2.0",
				Description:    "Chat Service",
				ContactURI:     ownURI,
			},
			global.PresenceTuple{
				Basic:          global.BasicOpen,
				ServiceID:      pidf.ServiceIDFileTransfer,
				ServiceVersion: "1.0",
				Description:    "File Transfer",
				ContactURI:     ownURI,
			})
	}
	return tuples
}

func (s Snapshot) videoCapable() bool {
	return s.VtEnabled && s.MobileDataEnabled && !s.TtyEnabled
}

// =========================================================================================================

// Monitor holds the live device settings and fans setting changes out to the
// registered listeners. Setters only notify when the value actually changed.
type Monitor struct {
	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []func(SettingEvent)
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) Register(listener func(SettingEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

func (m *Monitor) SetAirplaneMode(enabled bool) {
	m.apply(KindAirplaneMode, enabled, func(s *Snapshot) bool {
		changed := s.AirplaneMode != enabled
		s.AirplaneMode = enabled
		return changed
	})
}

func (m *Monitor) SetMobileDataEnabled(enabled bool) {
	m.apply(KindMobileData, enabled, func(s *Snapshot) bool {
		changed := s.MobileDataEnabled != enabled
		s.MobileDataEnabled = enabled
		return changed
	})
}

func (m *Monitor) SetTtyEnabled(enabled bool) {
	m.apply(KindTty, enabled, func(s *Snapshot) bool {
		changed := s.TtyEnabled != enabled
		s.TtyEnabled = enabled
		return changed
	})
}

func (m *Monitor) SetVtEnabled(enabled bool) {
	m.apply(KindVt, enabled, func(s *Snapshot) bool {
		changed := s.VtEnabled != enabled
		s.VtEnabled = enabled
		return changed
	})
}

func (m *Monitor) SetProvisioned(enabled bool) {
	m.apply(KindProvisioning, enabled, func(s *Snapshot) bool {
		changed := s.Provisioned != enabled
		s.Provisioned = enabled
		return changed
	})
}

func (m *Monitor) SetImsRegistered(enabled bool) {
	m.apply(KindRegistration, enabled, func(s *Snapshot) bool {
		changed := s.ImsRegistered != enabled
		s.ImsRegistered = enabled
		return changed
	})
}

func (m *Monitor) ApplySnapshot(snapshot Snapshot) {
	m.SetAirplaneMode(snapshot.AirplaneMode)
	m.SetMobileDataEnabled(snapshot.MobileDataEnabled)
	m.SetTtyEnabled(snapshot.TtyEnabled)
	m.SetVtEnabled(snapshot.VtEnabled)
	m.SetProvisioned(snapshot.Provisioned)
	m.SetImsRegistered(snapshot.ImsRegistered)
}

func (m *Monitor) apply(kind SettingKind, enabled bool, mutate func(*Snapshot) bool) {
	m.mu.Lock()
	changed := mutate(&m.snapshot)
	listeners := m.listeners
	m.mu.Unlock()

	if !changed {
		return
	}
	global.LogInfo(global.LTSettings, fmt.Sprintf("%s changed to [%t]", kind, enabled))
	for _, listener := range listeners {
		listener(SettingEvent{Kind: kind, Enabled: enabled})
	}
}
