package model

// FamilyUnknown is the explicit fallback for every device dimension the
// user-agent parser cannot place.
const FamilyUnknown = "unknown"

// Browser families recognized by the parser.
const (
	BrowserEdge    = "edge"
	BrowserOpera   = "opera"
	BrowserChrome  = "chrome"
	BrowserFirefox = "firefox"
	BrowserSafari  = "safari"
)

// OS families recognized by the parser.
const (
	OSWindows = "windows"
	OSAndroid = "android"
	OSIOS     = "ios"
	OSMacOS   = "macos"
	OSLinux   = "linux"
)

// Device classes recognized by the parser.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// DeviceInfo is the tagged result of user-agent parsing. Fields are never
// empty; FamilyUnknown marks anything that did not match.
type DeviceInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
}

// UnknownDevice returns a DeviceInfo with every dimension unresolved.
func UnknownDevice() DeviceInfo {
	return DeviceInfo{
		Browser: FamilyUnknown,
		OS:      FamilyUnknown,
		Device:  FamilyUnknown,
	}
}
