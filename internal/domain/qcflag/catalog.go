package qcflag

import "strings"

const (
	DefaultBadColor    = "#d62631"
	DefaultNotBadColor = "#4caf50"
)

// DefaultColor is the display color of a flag type created without one.
func DefaultColor(bad bool) string {
	if bad {
		return DefaultBadColor
	}
	return DefaultNotBadColor
}

// FlagTypeSeed describes a flag type installed by catalog import when absent.
type FlagTypeSeed struct {
	Name           string
	Method         string
	Bad            bool
	MCReproducible bool
}

var DefaultFlagTypes = []FlagTypeSeed{
	{Name: "Unknown Quality", Method: "UnknownQuality", Bad: true},
	{Name: "Good", Method: "Good"},
	{Name: "Limited Acceptance MC Reproducible", Method: "LimitedAcceptanceMCReproducible", Bad: true, MCReproducible: true},
	{Name: "Limited acceptance", Method: "LimitedAcceptance", Bad: true},
	{Name: "Bad PID", Method: "BadPID", Bad: true},
	{Name: "Bad", Method: "Bad", Bad: true},
	{Name: "Archived", Method: "Archived"},
}

var nonQCDetectors = map[string]struct{}{
	"TST": {},
}

// IsQCDetector reports whether flags may be assigned to the detector.
func IsQCDetector(name string) bool {
	_, excluded := nonQCDetectors[strings.ToUpper(strings.TrimSpace(name))]
	return !excluded
}

// GaqPresets maps a beam type to the detector names aggregated by default.
type GaqPresets map[string][]string

var DefaultGaqPresets = GaqPresets{
	"pp":   {"TPC", "ITS", "FT0"},
	"PbPb": {"TPC", "ITS", "FT0", "ZDC"},
}

// DetectorsFor resolves the preset of a beam type, falling back to the defaults.
// Beam types are matched case-insensitively.
func (p GaqPresets) DetectorsFor(beamType string) []string {
	key := strings.TrimSpace(beamType)
	for _, presets := range []GaqPresets{p, DefaultGaqPresets} {
		for name, detectors := range presets {
			if strings.EqualFold(name, key) {
				return append([]string(nil), detectors...)
			}
		}
	}
	return nil
}
