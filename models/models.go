// Package models maps short user-facing model aliases to the canonical
// identifiers the faster-whisper backend expects. Unknown names pass
// through unchanged in both directions.
package models

const (
	MinBeam = 1
	MaxBeam = 20
)

var aliasToModel = map[string]string{
	"tiny":           "Systran/faster-whisper-tiny",
	"tiny.en":        "Systran/faster-whisper-tiny.en",
	"base":           "Systran/faster-whisper-base",
	"base.en":        "Systran/faster-whisper-base.en",
	"small":          "Systran/faster-whisper-small",
	"small.en":       "Systran/faster-whisper-small.en",
	"medium":         "Systran/faster-whisper-medium",
	"medium.en":      "Systran/faster-whisper-medium.en",
	"large-v2":       "Systran/faster-whisper-large-v2",
	"large-v3":       "Systran/faster-whisper-large-v3",
	"large":          "Systran/faster-whisper-large-v3",
	"distil-large-v3": "Systran/faster-distil-whisper-large-v3",
	"turbo":          "mobiuslabsgmbh/faster-whisper-large-v3-turbo",
}

// modelToAlias is the reverse map; the first alias registered for a
// canonical id wins, so iterate a fixed order instead of the map.
var modelToAlias = map[string]string{}

var aliasOrder = []string{
	"tiny", "tiny.en", "base", "base.en", "small", "small.en",
	"medium", "medium.en", "large-v2", "large-v3", "large",
	"distil-large-v3", "turbo",
}

func init() {
	for _, a := range aliasOrder {
		c := aliasToModel[a]
		if _, ok := modelToAlias[c]; !ok {
			modelToAlias[c] = a
		}
	}
}

// CanonicalFor returns the backend model identifier for an alias, or the
// input unchanged if it is not a known alias.
func CanonicalFor(name string) string {
	if c, ok := aliasToModel[name]; ok {
		return c
	}
	return name
}

// AliasFor returns the preferred alias for a canonical identifier, or the
// input unchanged if none is registered.
func AliasFor(canonical string) string {
	if a, ok := modelToAlias[canonical]; ok {
		return a
	}
	return canonical
}

// Aliases returns the known aliases in display order.
func Aliases() []string {
	out := make([]string, 0, len(aliasOrder))
	seen := map[string]bool{}
	for _, a := range aliasOrder {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// ClampBeam bounds a beam size to the range the backend accepts.
func ClampBeam(beam int) int {
	if beam < MinBeam {
		return MinBeam
	}
	if beam > MaxBeam {
		return MaxBeam
	}
	return beam
}

// NormalizeLanguage maps the "auto" sentinel to the empty string used on
// the wire (absent language hint means auto-detect).
func NormalizeLanguage(lang string) string {
	if lang == "auto" {
		return ""
	}
	return lang
}
