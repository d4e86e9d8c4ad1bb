package service

import (
	"strings"

	"github.com/vendimia/refledger/internal/app/model"
)

// ParseDeviceInfo derives browser, OS and device families from a raw
// user-agent string. It is a pure function; anything unrecognized comes back
// as the explicit unknown family rather than a silent fallthrough.
func ParseDeviceInfo(userAgent string) model.DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return model.UnknownDevice()
	}

	ua := strings.ToLower(userAgent)

	return model.DeviceInfo{
		Browser: browserFamily(ua),
		OS:      osFamily(ua),
		Device:  deviceClass(ua),
	}
}

func browserFamily(ua string) string {
	switch {
	// Edge and Opera embed "chrome" in their UA, so they go first.
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		return model.BrowserEdge
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return model.BrowserOpera
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/"):
		return model.BrowserChrome
	case strings.Contains(ua, "firefox/") || strings.Contains(ua, "fxios/"):
		return model.BrowserFirefox
	case strings.Contains(ua, "safari/"):
		return model.BrowserSafari
	default:
		return model.FamilyUnknown
	}
}

func osFamily(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return model.OSWindows
	case strings.Contains(ua, "android"):
		return model.OSAndroid
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return model.OSIOS
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return model.OSMacOS
	case strings.Contains(ua, "linux"):
		return model.OSLinux
	default:
		return model.FamilyUnknown
	}
}

func deviceClass(ua string) string {
	switch {
	case strings.Contains(ua, "bot") || strings.Contains(ua, "crawler") || strings.Contains(ua, "spider"):
		return model.DeviceBot
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return model.DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return model.DeviceMobile
	case strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "linux"):
		return model.DeviceDesktop
	default:
		return model.FamilyUnknown
	}
}
