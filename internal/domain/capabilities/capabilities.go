// Package capabilities holds the negotiated request describing what to
// automate and how.
//
// A Capabilities value is immutable once negotiated: methods that "change"
// it return a modified copy.
package capabilities

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Well-known capability keys accepted in desiredCapabilities.
const (
	KeyDevice        = "device"
	KeySDKVersion    = "sdkVersion"
	KeyLocale        = "locale"
	KeyLanguage      = "language"
	KeyTimeHack      = "timeHack"
	KeyExtraSwitches = "extraSwitches"
	KeyBundleName    = "CFBundleName"
	KeyBundleID      = "CFBundleIdentifier"
	KeyBundleVersion = "CFBundleVersion"
	KeyApp           = "app"
)

// Device types understood by the instrumentation layer.
const (
	DeviceIPhone = "iphone"
	DeviceIPad   = "ipad"
)

// Capabilities is the negotiated, immutable set of requested properties.
type Capabilities struct {
	Device        string
	SDKVersion    string
	Locale        string
	Language      string
	TimeHack      bool
	ExtraSwitches []string

	// Application selectors
	BundleName    string
	BundleID      string
	BundleVersion string
	App           string

	// Raw keeps every key as received, including unknown ones
	Raw map[string]interface{}
}

// FromMap builds Capabilities from a WebDriver desiredCapabilities object.
func FromMap(raw map[string]interface{}) (Capabilities, error) {
	var caps Capabilities
	var err error

	if caps.Device, err = getString(raw, KeyDevice); err != nil {
		return Capabilities{}, err
	}
	caps.Device = strings.ToLower(caps.Device)
	if caps.SDKVersion, err = getString(raw, KeySDKVersion); err != nil {
		return Capabilities{}, err
	}
	if caps.Locale, err = getString(raw, KeyLocale); err != nil {
		return Capabilities{}, err
	}
	if caps.Language, err = getString(raw, KeyLanguage); err != nil {
		return Capabilities{}, err
	}
	if caps.BundleName, err = getString(raw, KeyBundleName); err != nil {
		return Capabilities{}, err
	}
	if caps.BundleID, err = getString(raw, KeyBundleID); err != nil {
		return Capabilities{}, err
	}
	if caps.BundleVersion, err = getString(raw, KeyBundleVersion); err != nil {
		return Capabilities{}, err
	}
	if caps.App, err = getString(raw, KeyApp); err != nil {
		return Capabilities{}, err
	}
	if caps.TimeHack, err = getBool(raw, KeyTimeHack); err != nil {
		return Capabilities{}, err
	}
	if caps.ExtraSwitches, err = getStrings(raw, KeyExtraSwitches); err != nil {
		return Capabilities{}, err
	}

	if caps.Device == "" {
		caps.Device = DeviceIPhone
	}
	caps.Raw = maps.Clone(raw)

	return caps, nil
}

// WithSDKVersion returns a copy with the SDK version replaced.
func (c Capabilities) WithSDKVersion(version string) Capabilities {
	out := c.Clone()
	out.SDKVersion = version
	return out
}

// Clone returns a deep copy; slices and maps are not shared.
func (c Capabilities) Clone() Capabilities {
	out := c
	out.ExtraSwitches = slices.Clone(c.ExtraSwitches)
	out.Raw = maps.Clone(c.Raw)
	return out
}

// ToMap renders the capabilities the way they are reported back to clients.
func (c Capabilities) ToMap() map[string]interface{} {
	out := maps.Clone(c.Raw)
	if out == nil {
		out = make(map[string]interface{})
	}
	out[KeyDevice] = c.Device
	out[KeySDKVersion] = c.SDKVersion
	out[KeyTimeHack] = c.TimeHack
	setIfNotEmpty(out, KeyLocale, c.Locale)
	setIfNotEmpty(out, KeyLanguage, c.Language)
	setIfNotEmpty(out, KeyBundleName, c.BundleName)
	setIfNotEmpty(out, KeyBundleID, c.BundleID)
	setIfNotEmpty(out, KeyBundleVersion, c.BundleVersion)
	setIfNotEmpty(out, KeyApp, c.App)
	if len(c.ExtraSwitches) > 0 {
		out[KeyExtraSwitches] = slices.Clone(c.ExtraSwitches)
	}
	return out
}

func setIfNotEmpty(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func getString(raw map[string]interface{}, key string) (string, error) {
	val, ok := raw[key]
	if !ok || val == nil {
		return "", nil
	}

	switch v := val.(type) {
	case string:
		return v, nil
	case float64:
		// Clients sometimes send sdkVersion as a JSON number
		return strings.TrimSuffix(fmt.Sprintf("%g", v), ".0"), nil
	default:
		return "", fmt.Errorf("capability %s must be string, got %T", key, val)
	}
}

func getBool(raw map[string]interface{}, key string) (bool, error) {
	val, ok := raw[key]
	if !ok || val == nil {
		return false, nil
	}

	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return v == "true", nil
	default:
		return false, fmt.Errorf("capability %s must be bool, got %T", key, val)
	}
}

func getStrings(raw map[string]interface{}, key string) ([]string, error) {
	val, ok := raw[key]
	if !ok || val == nil {
		return nil, nil
	}

	switch v := val.(type) {
	case []string:
		return slices.Clone(v), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("capability %s must contain strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return strings.Fields(v), nil
	default:
		return nil, fmt.Errorf("capability %s must be a list, got %T", key, val)
	}
}
