package timeframe

import "time"

// FallbackTimezone is used when the requested zone cannot be loaded.
const FallbackTimezone = "Etc/GMT"

// utcEquivalent zones never drift from UTC and skip conversion entirely.
var utcEquivalent = map[string]bool{
	"":              true,
	"UTC":           true,
	"UCT":           true,
	"GMT":           true,
	"GMT0":          true,
	"GMT+0":         true,
	"GMT-0":         true,
	"Greenwich":     true,
	"Universal":     true,
	"Zulu":          true,
	"Etc/UTC":       true,
	"Etc/UCT":       true,
	"Etc/GMT":       true,
	"Etc/GMT0":      true,
	"Etc/GMT+0":     true,
	"Etc/GMT-0":     true,
	"Etc/Greenwich": true,
	"Etc/Universal": true,
	"Etc/Zulu":      true,
}

// IsUTCEquivalent reports whether name is handled as plain UTC.
func IsUTCEquivalent(name string) bool {
	return utcEquivalent[name]
}

// SafeTimezone loads name, falling back to UTC when it is unknown.
// The returned name is the one queries should use; ok is false on fallback.
func SafeTimezone(name string) (loc *time.Location, resolved string, ok bool) {
	if IsUTCEquivalent(name) {
		if name == "" {
			name = "UTC"
		}
		return time.UTC, name, true
	}
	l, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, FallbackTimezone, false
	}
	return l, name, true
}
