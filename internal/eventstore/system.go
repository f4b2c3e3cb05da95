package eventstore

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// DetectSystem describes the host platform for the "system" field of
// exception records, e.g. "ubuntu 24.04 (linux/amd64)".
func DetectSystem() string {
	arch := runtime.GOOS + "/" + runtime.GOARCH
	info, err := host.Info()
	if err != nil || info == nil {
		return arch
	}
	name := strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	if name == "" {
		return arch
	}
	return name + " (" + arch + ")"
}
