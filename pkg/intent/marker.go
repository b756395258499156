package intent

import (
	"regexp"
	"strings"
)

var markerRe = regexp.MustCompile(`\[NAVIGATION:([^\]]+)\]`)

// ExtractNavigation looks for a [NAVIGATION:<path>] marker in text. It
// returns the text with the first marker removed and the literal path.
func ExtractNavigation(text string) (clean string, path string, ok bool) {
	loc := markerRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, "", false
	}
	path = strings.TrimSpace(text[loc[2]:loc[3]])
	clean = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return clean, path, path != ""
}

// Marker renders path as a navigation marker.
func Marker(path string) string {
	return "[NAVIGATION:" + path + "]"
}
