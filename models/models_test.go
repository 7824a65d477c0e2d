package models

import "testing"

func TestAliasRoundTrip(t *testing.T) {
	for _, alias := range []string{"turbo", "base", "tiny.en", "distil-large-v3"} {
		if got := AliasFor(CanonicalFor(alias)); got != alias {
			t.Errorf("AliasFor(CanonicalFor(%q)) = %q", alias, got)
		}
	}
}

func TestUnknownNamePassesThrough(t *testing.T) {
	if got := CanonicalFor("foo"); got != "foo" {
		t.Errorf("CanonicalFor(foo) = %q", got)
	}
	if got := AliasFor("foo"); got != "foo" {
		t.Errorf("AliasFor(foo) = %q", got)
	}
}

func TestLargeAliasPrefersFirstRegistered(t *testing.T) {
	// "large-v3" and "large" share a canonical id; the first alias in
	// display order wins the reverse mapping.
	if got := AliasFor("Systran/faster-whisper-large-v3"); got != "large-v3" {
		t.Errorf("AliasFor(large-v3 canonical) = %q, want large-v3", got)
	}
}

func TestClampBeam(t *testing.T) {
	for _, tt := range []struct{ in, want int }{
		{0, 1}, {-3, 1}, {1, 1}, {5, 5}, {20, 20}, {21, 20}, {100, 20},
	} {
		if got := ClampBeam(tt.in); got != tt.want {
			t.Errorf("ClampBeam(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	if got := NormalizeLanguage("auto"); got != "" {
		t.Errorf("NormalizeLanguage(auto) = %q, want empty", got)
	}
	if got := NormalizeLanguage("en"); got != "en" {
		t.Errorf("NormalizeLanguage(en) = %q", got)
	}
}
