// Package platform abstracts the host facts the SDK stamps onto every
// event. Game engines embed their own implementation; Host is a
// minimal default good enough for desktop builds.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform supplies OS and device identity plus runtime readings.
type Platform interface {
	BuildPlatform() string
	OSVersion() string
	DeviceModel() string
	DeviceManufacturer() string
	ConnectionType() string
	WritablePath() string
	DeviceID() string
}

// Host reads what it can from the Go runtime and environment.
type Host struct{}

func NewHost() *Host { return &Host{} }

func (h *Host) BuildPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return "mac_osx"
	default:
		return runtime.GOOS
	}
}

func (h *Host) OSVersion() string {
	// Release numbers need platform-specific syscalls; the collector
	// accepts the bare platform name.
	return h.BuildPlatform()
}

func (h *Host) DeviceModel() string        { return "unknown" }
func (h *Host) DeviceManufacturer() string { return "unknown" }

// ConnectionType is "lan" on hosts without radio state introspection.
func (h *Host) ConnectionType() string { return "lan" }

func (h *Host) WritablePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "signalpipe")
	}
	return os.TempDir()
}

func (h *Host) DeviceID() string { return "" }
