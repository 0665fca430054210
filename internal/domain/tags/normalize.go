package tags

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UnknownArtistKey is the shared separation bucket for files without a
// usable artist tag. Grouping them means back-to-back untagged files still
// respect the artist window.
const UnknownArtistKey = "__unknown__"

var articles = []string{"the ", "a ", "an "}

// Normalize reduces a raw tag string to its separation key: NFKC-folded,
// lowercased, whitespace trimmed and collapsed, leading English articles
// stripped. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for stripped := true; stripped; {
		stripped = false
		for _, art := range articles {
			if strings.HasPrefix(s, art) {
				s = s[len(art):]
				stripped = true
				break
			}
		}
	}
	return s
}

// ArtistKey maps a raw artist string to its separation key. With bucketing
// enabled, untagged artists share UnknownArtistKey; otherwise the key is
// empty and the artist constraint does not apply to that file.
func ArtistKey(raw string, bucketUnknown bool) string {
	if key := Normalize(raw); key != "" {
		return key
	}
	if bucketUnknown {
		return UnknownArtistKey
	}
	return ""
}

// TitleKey maps a raw title string to its separation key. An empty key
// means no title constraint.
func TitleKey(raw string) string {
	return Normalize(raw)
}
