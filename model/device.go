package model

import (
	"fmt"
	"strings"

	ua "github.com/mileusna/useragent"
)

// DeviceInfoAttribute is the session attribute recording the client device at login.
const DeviceInfoAttribute = "DEVICE_INFO"

type DeviceInfo struct {
	Browser string `bson:"browser" json:"browser"`
	OS      string `bson:"os" json:"os"`
	Device  string `bson:"device" json:"device"`
}

// ParseDeviceInfo extracts useful information from User-Agent string
func ParseDeviceInfo(userAgent string) DeviceInfo {
	if userAgent == "" {
		return DeviceInfo{Browser: "Unknown Browser", OS: "Unknown OS", Device: "Desktop"}
	}

	parsed := ua.Parse(userAgent)

	info := DeviceInfo{
		Browser: strings.TrimSpace(parsed.Name),
		OS:      strings.TrimSpace(parsed.OS),
		Device:  "Desktop",
	}
	if info.Browser == "" {
		info.Browser = "Unknown Browser"
	}
	if info.OS == "" {
		info.OS = "Unknown OS"
	}

	switch {
	case parsed.Mobile && strings.Contains(userAgent, "iPhone"):
		info.Device = "iPhone"
	case parsed.Mobile:
		info.Device = "Mobile"
	case parsed.Tablet:
		info.Device = "Tablet"
	}

	return info
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s on %s (%s)", d.Browser, d.OS, d.Device)
}
