package tags

import (
	"os"

	"github.com/dhowden/tag"
)

// readEmbedded reads tags in-process as a fallback for files ffprobe could
// not handle (or when the binary is missing entirely). Track artist wins
// over album artist, same lookup order as the probe path.
func readEmbedded(path string) (artist, title string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}

	artist = m.Artist()
	if artist == "" {
		artist = m.AlbumArtist()
	}
	return artist, m.Title()
}
