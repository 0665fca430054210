package tags

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"lowercase", "Daft Punk", "daft punk"},
		{"leading article the", "The Beatles", "beatles"},
		{"leading article a", "A Tribe Called Quest", "tribe called quest"},
		{"leading article an", "An Horse", "horse"},
		{"article only at start", "Echo And The Bunnymen", "echo and the bunnymen"},
		{"collapse whitespace", "THE  BEATLES ", "beatles"},
		{"tabs and newlines", "the\tbeatles\n", "beatles"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"bare article survives", "the ", "the"},
		{"unicode fullwidth", "ＡＢＢＡ", "abba"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"The Beatles", "the beatles", "THE  BEATLES ",
		"A  Flock of Seagulls", "Sigur Rós", "ＡＢＢＡ", "",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestNormalizeVariantsCollide(t *testing.T) {
	variants := []string{"The Beatles", "the beatles", "THE  BEATLES "}
	want := Normalize(variants[0])
	for _, v := range variants[1:] {
		if got := Normalize(v); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestArtistKey(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		bucket   bool
		expected string
	}{
		{"tagged artist", "The Beatles", true, "beatles"},
		{"empty with bucket", "", true, UnknownArtistKey},
		{"whitespace with bucket", "  ", true, UnknownArtistKey},
		{"empty without bucket", "", false, ""},
		{"tagged ignores bucket flag", "Björk", false, "björk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArtistKey(tt.raw, tt.bucket); got != tt.expected {
				t.Errorf("ArtistKey(%q, %v) = %q, want %q", tt.raw, tt.bucket, got, tt.expected)
			}
		})
	}
}

func TestTitleKey(t *testing.T) {
	if got := TitleKey("  A Day In The Life "); got != "day in the life" {
		t.Errorf("TitleKey = %q, want %q", got, "day in the life")
	}
	if got := TitleKey(""); got != "" {
		t.Errorf("TitleKey of empty = %q, want empty", got)
	}
}
