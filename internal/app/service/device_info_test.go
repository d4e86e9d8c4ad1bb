package service

import (
	"testing"

	"github.com/vendimia/refledger/internal/app/model"
)

func TestParseDeviceInfo(t *testing.T) {
	cases := []struct {
		name string
		ua   string
		want model.DeviceInfo
	}{
		{
			"chrome on windows",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			model.DeviceInfo{Browser: model.BrowserChrome, OS: model.OSWindows, Device: model.DeviceDesktop},
		},
		{
			"edge on windows",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			model.DeviceInfo{Browser: model.BrowserEdge, OS: model.OSWindows, Device: model.DeviceDesktop},
		},
		{
			"safari on iphone",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1",
			model.DeviceInfo{Browser: model.BrowserSafari, OS: model.OSIOS, Device: model.DeviceMobile},
		},
		{
			"firefox on linux",
			"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			model.DeviceInfo{Browser: model.BrowserFirefox, OS: model.OSLinux, Device: model.DeviceDesktop},
		},
		{
			"chrome on android tablet",
			"Mozilla/5.0 (Linux; Android 13; Tablet) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
			model.DeviceInfo{Browser: model.BrowserChrome, OS: model.OSAndroid, Device: model.DeviceTablet},
		},
		{
			"googlebot",
			"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			model.DeviceInfo{Browser: model.FamilyUnknown, OS: model.FamilyUnknown, Device: model.DeviceBot},
		},
		{
			"empty",
			"",
			model.UnknownDevice(),
		},
		{
			"garbage",
			"curl/8.4.0",
			model.UnknownDevice(),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDeviceInfo(tc.ua)
			if got != tc.want {
				t.Fatalf("ParseDeviceInfo(%q) = %+v, want %+v", tc.ua, got, tc.want)
			}
		})
	}
}

func TestDeriveFingerprint(t *testing.T) {
	a := DeriveFingerprint("ua", "1.2.3.4", "ref")
	b := DeriveFingerprint("ua", "1.2.3.4", "ref")
	if a != b {
		t.Fatal("fingerprint must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}

	// Field boundaries matter: shifting a byte between fields must change
	// the hash.
	if DeriveFingerprint("uax", "1.2.3.4", "ref") == DeriveFingerprint("ua", "x1.2.3.4", "ref") {
		t.Fatal("fingerprint fields are not separated")
	}
}
